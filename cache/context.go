package cache

import (
	"context"
	"time"
)

// populationContext is the context a factory runs with. It carries the values
// of the reader that started the population but none of its deadline or
// cancellation: the population serves every reader of the key, not just the
// first one, and must not stop when that reader gives up.
type populationContext struct {
	parent context.Context
}

// Deadline never reports one.
func (populationContext) Deadline() (time.Time, bool) { return time.Time{}, false }

// Done returns nil: the context is never cancelled.
func (populationContext) Done() <-chan struct{} { return nil }

func (populationContext) Err() error { return nil }

// Value looks key up in the reader's context.
func (c populationContext) Value(key any) any { return c.parent.Value(key) }

// detach returns ctx stripped of its deadline and cancellation.
func detach(ctx context.Context) context.Context {
	switch ctx.(type) {
	case nil:
		return context.Background()
	case populationContext:
		return ctx
	}
	return populationContext{parent: ctx}
}
