// Package stream implements the blockchain event pipeline: concurrent
// historical backfill with in-order dispatch, live subscription, and a
// staleness monitor that forces reconnects.
package stream

import (
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
)

// BlockData is the unit handed to the consumer: one block's worth of
// events that matched the filter. Blocks are always dispatched in
// non-decreasing height order.
type BlockData struct {
	Height int64
	Events []chain.Event
}

// EventFilter selects the events a stream cares about by type, with an
// optional attribute-key requirement.
type EventFilter struct {
	types map[string]struct{}
	// attributeKeys, when non-empty, requires at least one of the keys
	// to be present on the event.
	attributeKeys []string
}

// NewEventFilter creates a filter accepting the given event types.
func NewEventFilter(types []string, attributeKeys ...string) *EventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return &EventFilter{types: set, attributeKeys: attributeKeys}
}

// Match reports whether an event passes the filter.
func (f *EventFilter) Match(e chain.Event) bool {
	if len(f.types) > 0 {
		if _, ok := f.types[e.Type]; !ok {
			return false
		}
	}
	if len(f.attributeKeys) == 0 {
		return true
	}
	for _, key := range f.attributeKeys {
		if _, ok := e.Attribute(key); ok {
			return true
		}
	}
	return false
}

// Apply returns the events that pass the filter.
func (f *EventFilter) Apply(events []chain.Event) []chain.Event {
	var matched []chain.Event
	for _, e := range events {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}
	return matched
}
