// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("deadline")
	ne := New(CodeTimeout, "action timed out", cause)

	if ne.Code != CodeTimeout {
		t.Errorf("expected CodeTimeout, got %v", ne.Code)
	}
	if ne.Message != "action timed out" {
		t.Errorf("unexpected message %q", ne.Message)
	}
	if !errors.Is(ne, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
	if !strings.Contains(ne.Error(), "[TIMEOUT] action timed out: deadline") {
		t.Errorf("unexpected error string %q", ne.Error())
	}
}

func TestNewf(t *testing.T) {
	ne := Newf(CodeNamespaceNotFound, "no namespace '%s' defined", "nope")
	if ne.Message != "no namespace 'nope' defined" {
		t.Errorf("unexpected message %q", ne.Message)
	}
	if ne.Err != nil {
		t.Errorf("expected nil cause")
	}
}

func TestWithContextAndRecoverable(t *testing.T) {
	ne := New(CodeActionFailure, "action failed", nil).
		WithContext("action", "http-request").
		WithRecoverable(true)

	if ne.Context["action"] != "http-request" {
		t.Errorf("expected context action to be set")
	}
	if ne.RecoverableString() != "true" {
		t.Errorf("expected recoverable")
	}
}

func TestHasCode(t *testing.T) {
	inner := New(CodeTimeout, "inner", nil)
	outer := New(CodeActionFailure, "outer", inner)
	wrapped := fmt.Errorf("step: %w", outer)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"outer code", wrapped, CodeActionFailure, true},
		{"inner code", wrapped, CodeTimeout, true},
		{"absent code", wrapped, CodeBudgetExhausted, false},
		{"plain error", errors.New("plain"), CodeInternal, false},
		{"nil error", nil, CodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCode(tt.err, tt.code); got != tt.want {
				t.Errorf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsNerveError(t *testing.T) {
	if AsNerveError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	plain := errors.New("boom")
	ne := AsNerveError(plain)
	if ne.Code != CodeInternal || !errors.Is(ne, plain) {
		t.Fatalf("expected internal wrapper, got %+v", ne)
	}
	typed := New(CodeStorageNotFound, "storage x not found", nil)
	if AsNerveError(fmt.Errorf("ctx: %w", typed)) != typed {
		t.Fatal("expected the typed error to be returned as is")
	}
	if CodeOf(typed) != CodeStorageNotFound {
		t.Fatalf("unexpected code %s", CodeOf(typed))
	}
}

func TestMarshalJSON(t *testing.T) {
	ne := New(CodeLLMError, "chat failed", errors.New("503")).WithContext("provider", "ollama")
	data, err := json.Marshal(ne)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != "LLM_ERROR" || decoded["error"] != "503" {
		t.Fatalf("unexpected payload %s", data)
	}
}
