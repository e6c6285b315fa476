package agent

import "github.com/jllopis/nerve/pkg/rag"

// Task is what the agent works on.
type Task interface {
	// SystemPrompt returns the task specific system prompt.
	SystemPrompt() (string, error)
	// ToPrompt returns the objective given to the model.
	ToPrompt() (string, error)
	// Namespaces lists the requested namespaces. A nil slice selects every
	// default namespace; "*" expands to them alongside explicit names.
	Namespaces() []string
	// Functions returns task specific namespaces.
	Functions() []*Namespace
	// RAGConfig returns the retrieval configuration, or nil.
	RAGConfig() *rag.Config
	// Guidance returns extra rules appended to the system prompt.
	Guidance() ([]string, error)
}
