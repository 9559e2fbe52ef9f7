// Package pipeline implements the generic, data-driven handler dispatch that every protocol
// endpoint is built from. Rather than per-endpoint classes dispatched via runtime type switches,
// handlers are registered as HandlerDescriptor values in a table, sorted once by Order, and
// invoked in that order for every context type they declare filters for — the "pipeline as data"
// re-architecture spec.md §9 calls for.
package pipeline

import "context"

// Lifetime controls whether a handler's Factory is invoked once (Singleton, the common case for
// stateless validation/handling) or once per dispatch (Scoped, for handlers that must not share
// state across transactions).
type Lifetime int

const (
	Singleton Lifetime = iota
	Scoped
)

// Handler is implemented by every pipeline stage. Context is one of the *Context types in this
// package or a protocol-defined subtype embedding one of them.
type Handler interface {
	Handle(ctx context.Context, rc Context) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, rc Context) error

func (f HandlerFunc) Handle(ctx context.Context, rc Context) error { return f(ctx, rc) }

// Filter narrows which contexts of a given context type a descriptor applies to, beyond the
// static type match (e.g. "only when EndpointType == token").
type Filter func(rc Context) bool

// HandlerDescriptor is one row of the dispatch table: what context type it handles, in what
// order relative to its siblings, under what filters, and how to construct the Handler.
type HandlerDescriptor struct {
	// Name identifies the descriptor for diagnostics. Register does not check names for duplicates.
	Name string

	// ContextType is the event name (matched against Context.EventName() by the Dispatcher) this
	// descriptor participates in. Descriptors are grouped by ContextType and sorted by Order
	// within a group.
	ContextType ContextType

	// Order determines dispatch sequence within a ContextType group; lower runs first. Ties break
	// by registration order, per spec.md §5's "handlers run in strictly ascending order".
	Order int

	Lifetime Lifetime
	Filters  []Filter

	// Factory constructs the Handler. Called once for Singleton, once per dispatch for Scoped.
	Factory func() Handler

	// Required marks a descriptor whose absence from the table is a configuration fault rather
	// than a silent no-op, per spec.md §7.
	Required bool
}

func (d HandlerDescriptor) applies(rc Context) bool {
	for _, f := range d.Filters {
		if !f(rc) {
			return false
		}
	}
	return true
}
