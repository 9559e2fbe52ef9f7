package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/pipeline"
)

type testContext struct {
	pipeline.BaseContext
	trace []string
}

func newTestContext(tx *oauth2tx.Transaction) *testContext {
	return &testContext{BaseContext: pipeline.NewBaseContext("test.event", tx)}
}

func TestDispatcherRunsInOrder(t *testing.T) {
	d := pipeline.NewDispatcher()
	d.Register(
		pipeline.HandlerDescriptor{
			Name:        "second",
			ContextType: "test.event",
			Order:       20,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
					rc.(*testContext).trace = append(rc.(*testContext).trace, "second")
					return nil
				})
			},
		},
		pipeline.HandlerDescriptor{
			Name:        "first",
			ContextType: "test.event",
			Order:       10,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
					rc.(*testContext).trace = append(rc.(*testContext).trace, "first")
					return nil
				})
			},
		},
	)

	rc := newTestContext(oauth2tx.New(context.Background(), oauth2tx.EndpointToken, oauth2tx.Options{}))
	require.NoError(t, d.Dispatch(context.Background(), rc))
	require.Equal(t, []string{"first", "second"}, rc.trace)
}

func TestDispatcherStopsOnHandled(t *testing.T) {
	d := pipeline.NewDispatcher()
	d.Register(
		pipeline.HandlerDescriptor{
			Name:        "marks-handled",
			ContextType: "test.event",
			Order:       10,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
					rc.MarkHandled()
					return nil
				})
			},
		},
		pipeline.HandlerDescriptor{
			Name:        "never-runs",
			ContextType: "test.event",
			Order:       20,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
					rc.(*testContext).trace = append(rc.(*testContext).trace, "never-runs")
					return nil
				})
			},
		},
	)

	rc := newTestContext(oauth2tx.New(context.Background(), oauth2tx.EndpointToken, oauth2tx.Options{}))
	require.NoError(t, d.Dispatch(context.Background(), rc))
	require.Empty(t, rc.trace)
	require.True(t, rc.IsHandled())
}

func TestDispatcherStopsOnRejected(t *testing.T) {
	d := pipeline.NewDispatcher()
	d.Register(
		pipeline.HandlerDescriptor{
			Name:        "rejects",
			ContextType: "test.event",
			Order:       10,
			Factory: func() pipeline.Handler {
				return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
					rc.Reject(&pipeline.ProtocolError{Code: "invalid_request"})
					return nil
				})
			},
		},
	)

	rc := newTestContext(oauth2tx.New(context.Background(), oauth2tx.EndpointToken, oauth2tx.Options{}))
	err := d.Dispatch(context.Background(), rc)
	require.Error(t, err)
	var perr *pipeline.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "invalid_request", perr.Code)
}

func TestDispatcherValidateAcceptsRegisteredRequired(t *testing.T) {
	d := pipeline.NewDispatcher()
	d.Register(pipeline.HandlerDescriptor{
		Name:        "required-but-elsewhere",
		ContextType: "other.event",
		Required:    true,
		Factory:     func() pipeline.Handler { return pipeline.HandlerFunc(func(context.Context, pipeline.Context) error { return nil }) },
	})
	require.NoError(t, d.Validate())
}

func TestDispatcherFilterSkipsNonApplicable(t *testing.T) {
	d := pipeline.NewDispatcher()
	d.Register(pipeline.HandlerDescriptor{
		Name:        "filtered-out",
		ContextType: "test.event",
		Filters:     []pipeline.Filter{func(pipeline.Context) bool { return false }},
		Factory: func() pipeline.Handler {
			return pipeline.HandlerFunc(func(_ context.Context, rc pipeline.Context) error {
				rc.(*testContext).trace = append(rc.(*testContext).trace, "should-not-run")
				return nil
			})
		},
	})

	rc := newTestContext(oauth2tx.New(context.Background(), oauth2tx.EndpointToken, oauth2tx.Options{}))
	require.NoError(t, d.Dispatch(context.Background(), rc))
	require.Empty(t, rc.trace)
}
