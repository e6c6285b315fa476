package agent

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/beevik/etree"

	"github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/llm"
)

// reasoning blocks some models emit before acting
var ignoredElements = map[string]bool{"think": true, "thinking": true}

// ParseInvocations extracts the invocations of the named actions from a text
// reply, in order of appearance. Prose and unknown tags around them are
// ignored. With no names every element is considered an invocation.
func ParseInvocations(text string, actions []string) ([]Invocation, error) {
	var known map[string]bool
	if len(actions) > 0 {
		known = make(map[string]bool, len(actions))
		for _, name := range actions {
			known[name] = true
		}
	}

	text = stripReasoning(text)
	var (
		out     []Invocation
		lastErr error
	)
	for pos := 0; pos < len(text); {
		start, name := nextTag(text, pos, known)
		if start < 0 {
			break
		}
		end, ok := elementEnd(text, start, name)
		if !ok {
			pos = start + 1 + len(name)
			continue
		}
		inv, err := parseElement(text[start:end], name)
		pos = end
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, inv)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == ':'
}

// nextTag finds the first opening tag at or after pos whose name is in known,
// or any opening tag when known is nil. It returns -1 when there is none.
func nextTag(text string, pos int, known map[string]bool) (int, string) {
	for i := pos; i < len(text); i++ {
		if text[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(text) && isNameByte(text[j]) {
			j++
		}
		name := text[i+1 : j]
		if name == "" {
			continue
		}
		if j < len(text) && !strings.ContainsRune(" \t\r\n/>", rune(text[j])) {
			continue
		}
		if known == nil || known[name] {
			return i, name
		}
	}
	return -1, ""
}

// elementEnd returns the offset just past the element opened at start.
func elementEnd(text string, start int, name string) (int, bool) {
	gt := strings.IndexByte(text[start:], '>')
	if gt < 0 {
		return 0, false
	}
	gt += start
	if text[gt-1] == '/' {
		return gt + 1, true
	}
	closing := "</" + name + ">"
	c := strings.Index(text[gt+1:], closing)
	if c < 0 {
		return 0, false
	}
	return gt + 1 + c + len(closing), true
}

func stripReasoning(text string) string {
	for {
		start, name := nextTag(text, 0, ignoredElements)
		if start < 0 {
			return text
		}
		end, ok := elementEnd(text, start, name)
		if !ok {
			return text
		}
		text = text[:start] + text[end:]
	}
}

// parseElement decodes a single element. A body that is not well formed XML,
// such as a shell redirection, is kept verbatim as the payload.
func parseElement(fragment, name string) (Invocation, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(fragment); err == nil && doc.Root() != nil {
		return invocationFrom(doc.Root(), strings.TrimSpace(innerText(doc.Root()))), nil
	}

	closing := "</" + name + ">"
	open := fragment[:strings.IndexByte(fragment, '>')+1]
	if !strings.HasSuffix(fragment, closing) || strings.HasSuffix(open, "/>") {
		return Invocation{}, errors.New(errors.CodeUnparsedResponse, "could not parse response", nil).
			WithContext("action", name)
	}
	doc = etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(open + closing); err != nil || doc.Root() == nil {
		return Invocation{}, errors.New(errors.CodeUnparsedResponse, "could not parse response", err).
			WithContext("action", name)
	}
	body := fragment[len(open) : len(fragment)-len(closing)]
	return invocationFrom(doc.Root(), strings.TrimSpace(html.UnescapeString(body))), nil
}

func invocationFrom(el *etree.Element, payload string) Invocation {
	inv := Invocation{Action: el.FullTag(), Payload: payload}
	if len(el.Attr) > 0 {
		inv.Attributes = make(map[string]string, len(el.Attr))
		for _, attr := range el.Attr {
			inv.Attributes[attr.FullKey()] = attr.Value
		}
	}
	return inv
}

// innerText concatenates the character data of el and its descendants.
func innerText(el *etree.Element) string {
	var b strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			b.WriteString(innerText(t))
		}
	}
	return b.String()
}

// ParseToolCall converts a native tool call into an Invocation. The payload
// argument becomes the payload; every other argument becomes an attribute.
func ParseToolCall(call llm.ToolCall) (Invocation, error) {
	inv := Invocation{Action: call.Function.Name}
	if strings.TrimSpace(call.Function.Arguments) == "" {
		return inv, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return inv, errors.New(errors.CodeUnparsedResponse, "invalid tool call arguments", err).
			WithContext("action", call.Function.Name)
	}

	for key, value := range args {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case nil:
			continue
		default:
			raw, _ := json.Marshal(v)
			s = string(raw)
		}
		if key == "payload" {
			inv.Payload = s
			continue
		}
		if inv.Attributes == nil {
			inv.Attributes = make(map[string]string)
		}
		inv.Attributes[key] = s
	}
	return inv, nil
}

// ParseResponse returns the invocations carried by a generator reply, tool
// calls first. Text replies are scanned for the named actions only.
func ParseResponse(resp *llm.ChatResponse, actions []string) ([]Invocation, error) {
	if len(resp.ToolCalls) > 0 {
		out := make([]Invocation, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			inv, err := ParseToolCall(call)
			if err != nil {
				return nil, err
			}
			out = append(out, inv)
		}
		return out, nil
	}

	invs, err := ParseInvocations(resp.Content, actions)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, errors.New(errors.CodeUnparsedResponse, "no valid action found in response", nil)
	}
	return invs, nil
}

// describeParseError turns a parse failure into feedback for the model.
func describeParseError(err error) string {
	return fmt.Sprintf("%s, use one of the available actions in the documented XML format", errorText(err))
}
