// Package annotations provides a clean, low-overhead annotation system for
// tracking compilation and query-evaluation events. The core never logs;
// installing a Handler is the only way observability data leaves it.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Compilation lifecycle
	CompileInvoked        = "compile/invoked"
	CompileChecked        = "compile/checked"
	CompileModeDiscovered = "compile/mode.discovered"
	CompileRuleLowered    = "compile/rule.lowered"
	CompileEmitted        = "compile/predicate.emitted"
	CompileComplete       = "compile/completed"

	// Query lifecycle
	QueryInvoked  = "query/invoked"
	QueryPass     = "query/pass"
	QueryComplete = "query/completed"

	// Predicate evaluation
	PredicateInvoked = "predicate/invoked"
	RuleFired        = "rule/fired"
	FactMatched      = "fact/matched"

	// Tabling
	TableHit      = "table/hit"
	TableMiss     = "table/miss"
	TableCutoff   = "table/cutoff"
	TableComplete = "table/completed"
	TableWait     = "table/wait"

	// Errors
	ErrorInternal = "error/internal"
	ErrorRuntime  = "error/runtime"
)

// Event represents a single annotation event.
type Event struct {
	Name string                 // Event name using hierarchical constants above
	Time time.Time              // When the event occurred
	Data map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during one compilation or query execution.
// A Collector with a nil handler is disabled and costs a single branch per
// potential event.
type Collector struct {
	enabled bool
	handler Handler

	mu     sync.Mutex
	events []Event
	counts map[string]int
}

// NewCollector creates a collector. A nil handler disables collection.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		counts:  make(map[string]int),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Event records and dispatches one event.
func (c *Collector) Event(name string, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	e := Event{Name: name, Time: time.Now(), Data: data}
	c.mu.Lock()
	c.events = append(c.events, e)
	c.counts[name]++
	c.mu.Unlock()
	c.handler(e)
}

// Count returns how many events with the given name were recorded.
func (c *Collector) Count(name string) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Events returns a copy of the recorded events in order.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears recorded events and counts, keeping the handler.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.counts = make(map[string]int)
}
