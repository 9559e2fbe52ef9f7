package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ConfigurationError reports a dispatch-table inconsistency caught at Validate time rather than
// at request time, per spec.md §7's "fail fast at dispatch, not silently".
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "pipeline configuration: " + e.Message }

// Dispatcher holds the sorted, filtered handler table and invokes it per Context, per
// spec.md §4.3/§5.
type Dispatcher struct {
	mu       sync.RWMutex
	byType   map[ContextType][]HandlerDescriptor
	required map[ContextType]bool
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		byType:   make(map[ContextType][]HandlerDescriptor),
		required: make(map[ContextType]bool),
	}
}

// Register adds descriptors to the table, keeping each ContextType's group sorted by Order (ties
// broken by registration order, since sort.SliceStable is used).
func (d *Dispatcher) Register(descriptors ...HandlerDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, desc := range descriptors {
		if desc.Lifetime == Singleton && desc.Factory != nil {
			factory := desc.Factory
			var once sync.Once
			var h Handler
			desc.Factory = func() Handler {
				once.Do(func() { h = factory() })
				return h
			}
		}
		d.byType[desc.ContextType] = append(d.byType[desc.ContextType], desc)
		if desc.Required {
			d.required[desc.ContextType] = true
		}
		group := d.byType[desc.ContextType]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Order < group[j].Order })
	}
}

// Validate reports a *ConfigurationError if any ContextType marked Required has no registered
// descriptor. Register records Required together with the descriptor that carries it, so a table
// built only through Register always passes; Filters are not evaluated.
func (d *Dispatcher) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for ct := range d.required {
		if len(d.byType[ct]) == 0 {
			return &ConfigurationError{Message: fmt.Sprintf("no handlers registered for required context %q", ct)}
		}
	}
	return nil
}

// Dispatch runs every applicable descriptor for rc's ContextType in order. It stops as soon as a
// handler marks rc handled, skipped is purely advisory (a skipped handler simply means "try the
// next"), and a handler that calls rc.Reject (directly, or a subtype helper like
// BaseValidatingContext.RejectWithCode) stops the chain and Dispatch returns rc.Rejected().
// Cancellation of ctx stops dispatching further handlers, per spec.md §5.
func (d *Dispatcher) Dispatch(ctx context.Context, rc Context) error {
	d.mu.RLock()
	descriptors := append([]HandlerDescriptor(nil), d.byType[rc.EventName()]...)
	d.mu.RUnlock()

	for _, desc := range descriptors {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !desc.applies(rc) {
			continue
		}
		h := desc.Factory()
		if err := h.Handle(ctx, rc); err != nil {
			return err
		}
		if rc.IsRejected() {
			return rc.Rejected()
		}
		if rc.IsHandled() {
			return nil
		}
	}
	return nil
}
