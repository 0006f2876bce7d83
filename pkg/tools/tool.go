// Package tools defines the fixed set of capabilities the agent can invoke.
package tools

import (
	"context"
	"fmt"
)

// Observation is the result of one tool invocation. Invocations never
// panic and never return a raw error to the loop; failures are carried
// inside the observation so the loop can continue.
type Observation struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Err      error  `json:"-"`
}

// Failed reports whether the invocation produced no usable result.
func (o Observation) Failed() bool { return o.Err != nil }

// TextObservation wraps a text payload.
func TextObservation(text string) Observation {
	return Observation{Text: text}
}

// ErrorObservation wraps a failure with a user-safe message.
func ErrorObservation(msg string, err error) Observation {
	return Observation{Text: msg, Err: err}
}

// Tool is one named capability. Terminal tools produce output that is
// returned verbatim as the final answer without further interpretation.
type Tool struct {
	Name        string
	Description string
	// Param names the single string argument the tool accepts; the
	// argument schema exposed to the model is derived from it.
	Param    string
	Terminal bool
	Invoke   func(ctx context.Context, query string) Observation
}

// Schema returns the JSON schema for the tool's arguments.
func (t Tool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			t.Param: map[string]interface{}{
				"type":        "string",
				"description": fmt.Sprintf("The %s to pass to %s", t.Param, t.Name),
			},
		},
		"required":             []interface{}{t.Param},
		"additionalProperties": false,
	}
}

// Set is an ordered collection of tools bound to one conversation.
type Set struct {
	tools  []Tool
	byName map[string]Tool
}

// NewSetFromTools builds a set from explicit tools, preserving order.
func NewSetFromTools(ts ...Tool) *Set {
	s := &Set{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		s.tools = append(s.tools, t)
		s.byName[t.Name] = t
	}
	return s
}

// Get looks up a tool by name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// All returns the tools in registration order.
func (s *Set) All() []Tool {
	return s.tools
}
