package router

import "sort"

// Contract lists the incoming operations one side of a boundary accepts.
// Inbound frames naming anything else are rejected before any handler runs.
type Contract struct {
	events    map[string]struct{}
	functions map[string]struct{}
}

// NewContract builds a contract from event and function handles.
func NewContract(events, functions []string) Contract {
	c := Contract{
		events:    make(map[string]struct{}, len(events)),
		functions: make(map[string]struct{}, len(functions)),
	}
	for _, h := range events {
		c.events[h] = struct{}{}
	}
	for _, h := range functions {
		c.functions[h] = struct{}{}
	}
	return c
}

// HasEvent reports whether handle is a declared incoming event.
func (c Contract) HasEvent(handle string) bool {
	_, ok := c.events[handle]
	return ok
}

// HasFunction reports whether handle is a declared incoming function.
func (c Contract) HasFunction(handle string) bool {
	_, ok := c.functions[handle]
	return ok
}

// Events returns the declared event handles, sorted.
func (c Contract) Events() []string { return sortedKeys(c.events) }

// Functions returns the declared function handles, sorted.
func (c Contract) Functions() []string { return sortedKeys(c.functions) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
