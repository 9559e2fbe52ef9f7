package pipeline

import (
	"github.com/coreoidc/authd/message"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/storage"
)

// ContextType names an event in the dispatch table. Protocol endpoints define their own
// constants (e.g. "authorization.validate") rather than this package enumerating every event,
// keeping the core free of per-endpoint knowledge.
type ContextType string

// Context is implemented by every value a Dispatcher can route. The handled/skipped/rejected
// trio gives handlers the short-circuit semantics spec.md §4.3 describes: a context can be
// explicitly handled (stop further dispatch, treat as success), skipped (this handler declines,
// try the next), or rejected (stop further dispatch, treat as failure).
type Context interface {
	EventName() ContextType
	IsHandled() bool
	MarkHandled()
	IsSkipped() bool
	MarkSkipped()
	IsRejected() bool
	Rejected() error
	Reject(err error)
}

// BaseContext is the root of the context hierarchy every protocol context embeds.
type BaseContext struct {
	name        ContextType
	Transaction *oauth2tx.Transaction

	handled bool
	skipped bool
	err     error
}

// NewBaseContext scopes a BaseContext to name and the given transaction.
func NewBaseContext(name ContextType, tx *oauth2tx.Transaction) BaseContext {
	return BaseContext{name: name, Transaction: tx}
}

func (c *BaseContext) EventName() ContextType { return c.name }
func (c *BaseContext) IsHandled() bool         { return c.handled }
func (c *BaseContext) MarkHandled()             { c.handled = true }
func (c *BaseContext) IsSkipped() bool          { return c.skipped }
func (c *BaseContext) MarkSkipped()             { c.skipped = true }
func (c *BaseContext) IsRejected() bool         { return c.err != nil }
func (c *BaseContext) Rejected() error          { return c.err }
func (c *BaseContext) Reject(err error)         { c.err = err }

// BaseRequestContext adds the inbound message to BaseContext, for handlers that read request
// parameters (extract, validate, handle stages).
type BaseRequestContext struct {
	BaseContext
	Request *message.Request
}

func NewBaseRequestContext(name ContextType, tx *oauth2tx.Transaction) BaseRequestContext {
	return BaseRequestContext{BaseContext: NewBaseContext(name, tx), Request: tx.Request}
}

// BaseValidatingContext adds a validation-error accumulator: handlers append a wire error code
// and description rather than returning a Go error for expected protocol-level rejections, since
// those must reach the caller as a specific error code, not a generic failure.
type BaseValidatingContext struct {
	BaseRequestContext
	ErrorCode        string
	ErrorDescription string
}

func NewBaseValidatingContext(name ContextType, tx *oauth2tx.Transaction) BaseValidatingContext {
	return BaseValidatingContext{BaseRequestContext: NewBaseRequestContext(name, tx)}
}

// RejectWithCode rejects the context with a wire error code, per spec.md §6's error code table,
// and records it on the context for the response-shaping stage to surface.
func (c *BaseValidatingContext) RejectWithCode(code, description string) {
	c.ErrorCode = code
	c.ErrorDescription = description
	c.Reject(&ProtocolError{Code: code, Description: description})
}

// BaseValidatingClientContext adds the resolved Application to BaseValidatingContext, for
// handlers that run after client identity has been established (redirect URI match, permission
// checks, client-type compatibility).
type BaseValidatingClientContext struct {
	BaseValidatingContext
	Application *storage.Application
}

func NewBaseValidatingClientContext(name ContextType, tx *oauth2tx.Transaction) BaseValidatingClientContext {
	return BaseValidatingClientContext{BaseValidatingContext: NewBaseValidatingContext(name, tx)}
}

// BaseExternalContext is for contexts that hand control to the hosting application rather than
// resolving everything internally — interactive sign-in, consent prompts — per spec.md §9's
// "Pass-through mode".
type BaseExternalContext struct {
	BaseContext
	Subject         string
	IsAuthenticated bool
}

func NewBaseExternalContext(name ContextType, tx *oauth2tx.Transaction) BaseExternalContext {
	return BaseExternalContext{BaseContext: NewBaseContext(name, tx)}
}

// ProtocolError is a wire-level OAuth2/OIDC error: a registered error code plus an optional
// human-readable description, per spec.md §6.
type ProtocolError struct {
	Code        string
	Description string
}

func (e *ProtocolError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}
