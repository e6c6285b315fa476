// Package namespaces assembles the built-in namespaces.
package namespaces

import (
	"log/slog"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/namespaces/clock"
	"github.com/jllopis/nerve/pkg/agent/namespaces/filesystem"
	"github.com/jllopis/nerve/pkg/agent/namespaces/goal"
	"github.com/jllopis/nerve/pkg/agent/namespaces/memory"
	"github.com/jllopis/nerve/pkg/agent/namespaces/planning"
	"github.com/jllopis/nerve/pkg/agent/namespaces/rag"
	"github.com/jllopis/nerve/pkg/agent/namespaces/shell"
	"github.com/jllopis/nerve/pkg/agent/namespaces/task"
	"github.com/jllopis/nerve/pkg/agent/namespaces/web"
)

// Registry returns a registry holding every built-in namespace. Defaults come
// first, in the order they are shown to the model.
func Registry(logger *slog.Logger) *agent.Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := agent.NewRegistry()
	builtins := []struct {
		name    string
		factory agent.NamespaceFactory
	}{
		{"memory", memory.New},
		{"goal", goal.New},
		{"planning", planning.New},
		{"task", task.New},
		{"time", clock.New},
		{"filesystem", filesystem.New},
		{"shell", shell.New},
		{"http", func() *agent.Namespace { return web.New(web.WithLogger(logger)) }},
		{"rag", rag.New},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}
