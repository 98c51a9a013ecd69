// Package tools declares the agent's domain tool catalog: tool names,
// descriptions, executors over the content source, and the parameter
// escalation rules the retry policy applies after empty results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Result is a tool invocation's outcome. Count is the size of the
// primary collection; zero means "insufficient", which drives the
// retry and escalation policy.
type Result struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

// Empty reports whether the result's primary collection is empty.
func (r Result) Empty() bool {
	return r.Count == 0
}

// MarshalOutput renders the result for the procedural record.
func (r Result) MarshalOutput() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(raw)
}

// Definition is one tool in the catalog.
type Definition struct {
	Name        string
	Description string

	// Run executes the tool with LLM-supplied arguments.
	Run func(ctx context.Context, args map[string]any) (Result, error)

	// Escalate widens the tool's query parameters for a retry after an
	// empty result. Nil when the tool has nothing to widen.
	Escalate func(args map[string]any) map[string]any
}

// Registry holds the catalog by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates a registry from the given definitions.
func NewRegistry(defs []Definition) *Registry {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	return &Registry{defs: byName}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptions maps tool names to their descriptions, for the Tool
// node upserts.
func (r *Registry) Descriptions() map[string]string {
	out := make(map[string]string, len(r.defs))
	for name, d := range r.defs {
		out[name] = d.Description
	}
	return out
}
