package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jllopis/nerve/pkg/agent"
)

// Dialer opens a connection to one configured server.
type Dialer func(ctx context.Context, name string, cfg ServerConfig) (Conn, error)

// Conn is a live server connection.
type Conn interface {
	ToolSource
	Close() error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the default stdio/HTTP dialer.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.dial = d
		}
	}
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns the connections to every MCP server of a task.
type Manager struct {
	dial    Dialer
	logger  *slog.Logger
	names   []string
	configs map[string]ServerConfig
	conns   map[string]Conn
}

// Connect dials every server in sorted name order. When one fails, the
// connections already opened are closed.
func Connect(ctx context.Context, servers map[string]ServerConfig, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		dial:    dialServer,
		logger:  slog.Default(),
		configs: servers,
		conns:   make(map[string]Conn, len(servers)),
	}
	for _, opt := range opts {
		opt(m)
	}

	for name := range servers {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	for _, name := range m.names {
		cfg := servers[name]
		if err := cfg.Validate(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("mcp server %s: %w", name, err)
		}
		conn, err := m.dial(ctx, name, cfg)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("connect mcp server %s: %w", name, err)
		}
		m.conns[name] = conn
		m.logger.Debug("mcp server connected", "server", name)
	}
	return m, nil
}

// Namespaces builds one namespace per server, named after the server.
func (m *Manager) Namespaces(ctx context.Context) ([]*agent.Namespace, error) {
	out := make([]*agent.Namespace, 0, len(m.names))
	for _, name := range m.names {
		conn, ok := m.conns[name]
		if !ok {
			continue
		}
		ns, err := NewNamespace(ctx, name, conn, m.configs[name].Timeout)
		if err != nil {
			return nil, err
		}
		m.logger.Info("mcp namespace loaded", "server", name, "actions", len(ns.Actions))
		out = append(out, ns)
	}
	return out, nil
}

// Close closes every open connection.
func (m *Manager) Close() error {
	var errs []error
	for name, conn := range m.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mcp server %s: %w", name, err))
		}
		delete(m.conns, name)
	}
	return errors.Join(errs...)
}

func dialServer(ctx context.Context, _ string, cfg ServerConfig) (Conn, error) {
	var opts []ClientOption
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.URL != "" {
		return NewClientWithStreamableHTTP(ctx, cfg.URL, opts...)
	}
	return NewClientWithStdio(ctx, cfg.Command, cfg.Args, cfg.environ(), opts...)
}
