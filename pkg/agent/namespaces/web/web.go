// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

// Package web lets the agent talk to the web target named by HTTP_TARGET.
package web

import (
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
)

const (
	// StorageName is the tagged storage whose entries are sent as headers.
	StorageName = "http-headers"
	// TargetVariable holds the base URL every request is resolved against.
	TargetVariable = "HTTP_TARGET"
	// Timeout bounds a single request.
	Timeout = 30 * time.Second

	maxBodyBytes    = 1 << 20
	truncatedMarker = "\n\n[... response truncated ...]"
)

// DefaultHeaders are sent unless the agent clears or overrides them.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Accept-Encoding": "deflate",
}

// Option configures the namespace.
type Option func(*actions)

// WithClient replaces the HTTP client used for requests.
func WithClient(c *http.Client) Option {
	return func(a *actions) { a.client = c }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *actions) { a.logger = l }
}

type actions struct {
	client *http.Client
	logger *slog.Logger
}

// New returns the http namespace.
func New(opts ...Option) *agent.Namespace {
	a := &actions{client: &http.Client{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	return &agent.Namespace{
		Name:        "http",
		Description: "Use these actions to send HTTP requests to the target and manage the headers sent with them.",
		Storages:    []agent.StorageDescriptor{agent.TaggedStorage(StorageName).Predefine(DefaultHeaders)},
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "http-set-header",
				ActionDescription: "Set a header to be sent with every following request.",
				Attributes:        map[string]string{"name": "X-Header"},
				Payload:           "some-value-for-the-header",
				Fn:                setHeader,
			},
			&agent.FuncAction{
				ActionName:        "http-clear-headers",
				ActionDescription: "Remove every header, including the default ones.",
				Fn:                clearHeaders,
			},
			&agent.FuncAction{
				ActionName:        "http-request",
				ActionDescription: "Send an HTTP request to the target with the given method and path.",
				Attributes:        map[string]string{"method": "GET"},
				Payload:           "/index.php?id=1",
				Variables:         []string{TargetVariable},
				Deadline:          Timeout,
				Fn:                a.request,
			},
		},
	}
}

func setHeader(_ context.Context, state *agent.SharedState, attrs map[string]string, payload string) (string, error) {
	err := state.With(func(s *agent.State) error {
		st, err := s.StorageMut(StorageName)
		if err != nil {
			return err
		}
		st.AddTagged(attrs["name"], payload)
		return nil
	})
	if err != nil {
		return "", err
	}
	return "header set", nil
}

func clearHeaders(_ context.Context, state *agent.SharedState, _ map[string]string, _ string) (string, error) {
	err := state.With(func(s *agent.State) error {
		st, err := s.StorageMut(StorageName)
		if err != nil {
			return err
		}
		st.Clear()
		return nil
	})
	if err != nil {
		return "", err
	}
	return "http headers cleared", nil
}

// TargetURL resolves page against the target, adding a scheme when missing.
func TargetURL(target, page string) (*url.URL, error) {
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	base, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("can't parse %s: %w", target, err)
	}
	ref, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("can't join %s to %s: %w", page, target, err)
	}
	return base.ResolveReference(ref), nil
}

func (a *actions) request(ctx context.Context, state *agent.SharedState, attrs map[string]string, payload string) (string, error) {
	method := strings.ToUpper(strings.TrimSpace(attrs["method"]))

	var (
		target  string
		headers []agent.Entry
	)
	err := state.With(func(s *agent.State) error {
		v, ok := s.Variable(TargetVariable)
		if !ok {
			return agent.MissingVariable(TargetVariable)
		}
		target = v
		st, err := s.Storage(StorageName)
		if err != nil {
			return err
		}
		headers = st.Entries()
		return nil
	})
	if err != nil {
		return "", err
	}

	u, err := TargetURL(target, payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return "", err
	}
	for _, h := range headers {
		req.Header.Set(h.Key, h.Data)
	}

	a.logger.InfoContext(ctx, "http request", slog.String("method", method), slog.String("url", u.String()))

	start := time.Now()
	res, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	elapsed := time.Since(start)

	status := fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		a.logger.WarnContext(ctx, "http request failed", slog.String("status", status), slog.Duration("elapsed", elapsed))
		return "", errors.New(status)
	}

	body, err := readBody(res)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(status + "\n")
	keys := make([]string, 0, len(res.Header))
	for k := range res.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range res.Header[k] {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToLower(k), v)
		}
	}
	b.WriteString("\n\n")
	b.Write(body)

	a.logger.InfoContext(ctx, "http response", slog.String("status", status), slog.Duration("elapsed", elapsed), slog.Int("bytes", b.Len()))
	return b.String(), nil
}

func readBody(res *http.Response) ([]byte, error) {
	var r io.Reader = res.Body
	if strings.EqualFold(res.Header.Get("Content-Encoding"), "deflate") {
		zr, err := zlib.NewReader(res.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid deflate body: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		body = append(body[:maxBodyBytes], truncatedMarker...)
	}
	return body, nil
}
