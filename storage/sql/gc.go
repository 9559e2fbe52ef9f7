package sql

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreoidc/authd/storage"
)

type gc struct {
	now  func() time.Time
	conn *conn
}

func (gc gc) run() error {
	result, err := gc.conn.GarbageCollect(context.Background(), gc.now())
	if err != nil {
		return err
	}
	if !result.IsEmpty() {
		gc.conn.logger.Info("garbage collected",
			slog.Int64("tokens", result.Tokens),
			slog.Int64("authorizations", result.Authorizations))
	}
	return nil
}

type withCancel struct {
	storage.Store
	cancel context.CancelFunc
}

func (w withCancel) Close() error {
	w.cancel()
	return w.Store.Close()
}

// withGC wraps conn with a background loop that runs GarbageCollect every 30 seconds, stopping
// when the returned Store is closed.
func withGC(conn *conn, now func() time.Time) storage.Store {
	ctx, cancel := context.WithCancel(context.Background())
	run := (gc{now, conn}).run
	go func() {
		for {
			select {
			case <-time.After(time.Second * 30):
				if err := run(); err != nil {
					conn.logger.Error("garbage collection failed", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return withCancel{conn, cancel}
}
