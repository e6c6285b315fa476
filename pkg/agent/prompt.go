package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/jllopis/nerve/pkg/llm"
)

const systemPromptTemplate = `{{.SystemPrompt}}
{{range .Storages}}
## {{.Title}}

{{.Body}}
{{end}}{{if .Guidance}}
## Guidance

{{range .Guidance}}- {{.}}
{{end}}{{end}}{{if .Actions}}
## Available Actions

You can take exactly one action per reply by writing it as an XML element, for instance <action-name attribute="value">payload</action-name>. Only the actions listed below exist.
{{range .Actions}}
### {{.Namespace}}

{{.Description}}
{{range .Items}}
{{.Description}} To use it:

{{.Example}}
{{end}}{{end}}{{end}}`

var systemPrompt = template.Must(template.New("system").Parse(systemPromptTemplate))

type promptStorage struct {
	Title string
	Body  string
}

type promptAction struct {
	Description string
	Example     string
}

type promptNamespace struct {
	Namespace   string
	Description string
	Items       []promptAction
}

type promptData struct {
	SystemPrompt string
	Storages     []promptStorage
	Guidance     []string
	Actions      []promptNamespace
}

// BuildChatOptions renders s into a generator request. A zero maxHistory sends
// the whole log. When nativeTools is set actions are offered as tools instead
// of being described in the prompt.
func BuildChatOptions(s *State, maxHistory int, nativeTools bool) (*llm.ChatOptions, error) {
	if maxHistory <= 0 {
		maxHistory = s.history.Len()
	}
	taskSystem, err := s.task.SystemPrompt()
	if err != nil {
		return nil, err
	}
	guidance, err := s.task.Guidance()
	if err != nil {
		return nil, err
	}
	prompt, err := s.task.ToPrompt()
	if err != nil {
		return nil, err
	}

	data := promptData{
		SystemPrompt: strings.TrimSpace(taskSystem),
		Guidance:     guidance,
	}
	for _, st := range s.Storages() {
		if body := renderStorage(st); body != "" {
			data.Storages = append(data.Storages, promptStorage{Title: st.Name(), Body: body})
		}
	}

	opts := &llm.ChatOptions{
		Prompt:  strings.TrimSpace(prompt),
		History: s.ToChatHistory(maxHistory),
	}

	if nativeTools {
		opts.Tools = ActionTools(s.namespaces)
	} else {
		for _, ns := range s.namespaces {
			pn := promptNamespace{Namespace: ns.Name, Description: strings.TrimSpace(ns.Description)}
			for _, a := range ns.Actions {
				pn.Items = append(pn.Items, promptAction{
					Description: strings.TrimSpace(a.Description()),
					Example:     ExampleInvocation(a).XML(),
				})
			}
			data.Actions = append(data.Actions, pn)
		}
	}

	var b strings.Builder
	if err := systemPrompt.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	opts.SystemPrompt = strings.TrimSpace(b.String())
	return opts, nil
}

// ExampleInvocation builds the few-shot example for a.
func ExampleInvocation(a Action) Invocation {
	return Invocation{
		Action:     a.Name(),
		Attributes: a.ExampleAttributes(),
		Payload:    a.ExamplePayload(),
	}
}

func renderStorage(st *Storage) string {
	entries := st.Entries()
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	switch st.Kind() {
	case StorageTagged:
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Data)
		}
	case StorageUntagged:
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s\n", e.Data)
		}
	case StorageCompletion:
		for i, e := range entries {
			mark := " "
			if e.Complete {
				mark = "x"
			}
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, mark, e.Data)
		}
	case StorageCurrentPrevious:
		fmt.Fprintf(&b, "current: %s\n", st.Current())
		if prev := st.Previous(); prev != "" {
			fmt.Fprintf(&b, "previous: %s\n", prev)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ActionTools describes every action as a function tool whose arguments are
// the example attributes plus an optional payload.
func ActionTools(namespaces []*Namespace) []llm.Tool {
	var tools []llm.Tool
	for _, ns := range namespaces {
		for _, a := range ns.Actions {
			properties := map[string]any{}
			required := []string{}
			if p := a.ExamplePayload(); p != "" {
				properties["payload"] = map[string]any{
					"type":        "string",
					"description": "for example: " + p,
				}
				required = append(required, "payload")
			}
			attrs := a.ExampleAttributes()
			for _, key := range sortedKeys(attrs) {
				properties[key] = map[string]any{
					"type":        "string",
					"description": "for example: " + attrs[key],
				}
				required = append(required, key)
			}
			tools = append(tools, llm.Tool{
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionDef{
					Name:        a.Name(),
					Description: strings.TrimSpace(a.Description()),
					Parameters: map[string]any{
						"type":       "object",
						"properties": properties,
						"required":   required,
					},
				},
			})
		}
	}
	return tools
}
