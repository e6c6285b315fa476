package agent

import (
	"maps"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/jllopis/nerve/pkg/llm"
)

// Invocation is a parsed request to run one action.
type Invocation struct {
	Action     string
	Attributes map[string]string
	Payload    string
}

func (i Invocation) clone() Invocation {
	if i.Attributes != nil {
		i.Attributes = maps.Clone(i.Attributes)
	}
	return i
}

// XML renders the invocation the way the model is asked to write it:
// <action attr="value">payload</action>.
func (i Invocation) XML() string {
	doc := etree.NewDocument()
	el := doc.CreateElement(i.Action)
	for _, key := range sortedKeys(i.Attributes) {
		el.CreateAttr(key, i.Attributes[key])
	}
	if i.Payload != "" {
		el.SetText(i.Payload)
	}
	out, err := doc.WriteToString()
	if err != nil {
		return "<" + i.Action + "/>"
	}
	return out
}

// Execution is the immutable record of one step.
type Execution struct {
	invocation *Invocation
	response   string
	result     string
	err        string
	failed     bool
}

// NewSuccessExecution records a successful invocation.
func NewSuccessExecution(inv Invocation, result string) Execution {
	inv = inv.clone()
	return Execution{invocation: &inv, result: result}
}

// NewErrorExecution records a failed invocation.
func NewErrorExecution(inv Invocation, err string) Execution {
	inv = inv.clone()
	return Execution{invocation: &inv, err: err, failed: true}
}

// NewUnparsedExecution records a reply that could not be interpreted.
func NewUnparsedExecution(response, err string) Execution {
	return Execution{response: response, err: err, failed: true}
}

// Invocation returns the executed invocation, or false for unparsed replies.
func (e Execution) Invocation() (Invocation, bool) {
	if e.invocation == nil {
		return Invocation{}, false
	}
	return e.invocation.clone(), true
}

// Response returns the raw reply of an unparsed execution.
func (e Execution) Response() string { return e.response }

// Result returns the action output.
func (e Execution) Result() string { return e.result }

// Error returns the failure text, empty on success.
func (e Execution) Error() string { return e.err }

// Failed reports whether the step failed.
func (e Execution) Failed() bool { return e.failed }

// messages renders the execution as an assistant turn and its feedback.
func (e Execution) messages() []llm.Message {
	request := e.response
	if e.invocation != nil {
		request = e.invocation.XML()
	}

	var feedback string
	switch {
	case e.failed:
		feedback = "ERROR: " + e.err
	case strings.TrimSpace(e.result) != "":
		feedback = e.result
	default:
		feedback = "done"
	}

	return []llm.Message{
		{Role: llm.RoleAssistant, Content: request},
		{Role: llm.RoleUser, Content: feedback},
	}
}

// History is the append-only log of executions.
type History struct {
	executions []Execution
}

// Push appends one execution.
func (h *History) Push(e Execution) {
	h.executions = append(h.executions, e)
}

// Len returns the number of executions.
func (h *History) Len() int { return len(h.executions) }

// Executions returns a copy of the log, oldest first.
func (h *History) Executions() []Execution {
	return append([]Execution(nil), h.executions...)
}

// ToChatHistory renders the last max executions, oldest first. A non-positive
// max renders nothing.
func (h *History) ToChatHistory(max int) []llm.Message {
	if max <= 0 {
		return []llm.Message{}
	}
	window := h.executions
	if len(window) > max {
		window = window[len(window)-max:]
	}
	out := make([]llm.Message, 0, len(window)*2)
	for _, e := range window {
		out = append(out, e.messages()...)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
