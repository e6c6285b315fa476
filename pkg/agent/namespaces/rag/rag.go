// Package rag exposes document retrieval to the agent. It is only attached
// to runs whose task configures a retrieval engine.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/nerve/pkg/agent"
	ragengine "github.com/jllopis/nerve/pkg/rag"
)

// TopK is the number of documents returned per search.
const TopK = 1

// New returns the rag namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "rag",
		Description: "Use this action to search the indexed documents for information relevant to the task.",
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "search",
				ActionDescription: "Search the documents for the given query.",
				Payload:           "what is the default port of the service?",
				Fn:                search,
			},
		},
	}
}

func search(ctx context.Context, state *agent.SharedState, _ map[string]string, payload string) (string, error) {
	var engine *ragengine.Engine
	_ = state.With(func(s *agent.State) error {
		engine = s.RAG()
		return nil
	})
	if engine == nil {
		return "", agent.NoRAGEngine()
	}

	results, err := engine.Retrieve(ctx, payload, TopK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "no documents found", nil
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s, score %.2f]\n%s\n\n", r.Document.Path, r.Score, strings.TrimSpace(r.Document.Content))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
