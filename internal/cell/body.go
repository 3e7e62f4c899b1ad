// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the body contract of a cell. Bodies are opaque: the
// runtime only hands them their resolved inputs and inspects what comes back.
// A body may return a plain value, an Awaitable (the value arrives later) or a
// Generator (a sequence of values over time).
package cell

import (
	"context"
	"fmt"
	"time"
)

// Computable is implemented by every cell body.
type Computable interface {
	// Compute receives input values in the order of Cell.Inputs. The context
	// is cancelled when the cell is invalidated or its module is disposed.
	Compute(ctx context.Context, inputs []any) (any, error)
}

// Func adapts an ordinary function to Computable.
type Func func(ctx context.Context, inputs []any) (any, error)

// Compute implements Computable.
func (f Func) Compute(ctx context.Context, inputs []any) (any, error) {
	return f(ctx, inputs)
}

// Const returns a body that always yields v.
func Const(v any) Computable {
	return Func(func(context.Context, []any) (any, error) { return v, nil })
}

// Awaitable is a value that settles later. The runtime awaits it off the
// evaluation loop and keeps the cell Pending until it settles.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// AwaitFunc adapts a function to Awaitable.
type AwaitFunc func(ctx context.Context) (any, error)

// Await implements Awaitable.
func (f AwaitFunc) Await(ctx context.Context) (any, error) {
	return f(ctx)
}

// After returns an Awaitable that settles to v once d has elapsed.
func After(d time.Duration, v any) Awaitable {
	return AwaitFunc(func(ctx context.Context) (any, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			return v, nil
		}
	})
}

// Generator produces a sequence of values. Next blocks until the next value
// is available and returns ok=false once the sequence is exhausted. Close is
// called exactly once, when the runtime stops pulling.
type Generator interface {
	Next(ctx context.Context) (value any, ok bool, err error)
	Close() error
}

// sliceGenerator yields fixed values with an optional pause before each one.
type sliceGenerator struct {
	values []any
	every  time.Duration
	pos    int
}

// Values returns a Generator yielding values in order, waiting every before
// each value after the first.
func Values(every time.Duration, values ...any) Generator {
	return &sliceGenerator{values: values, every: every}
}

func (g *sliceGenerator) Next(ctx context.Context) (any, bool, error) {
	if g.pos >= len(g.values) {
		return nil, false, nil
	}
	if g.pos > 0 && g.every > 0 {
		t := time.NewTimer(g.every)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false, ctx.Err()
		case <-t.C:
		}
	}
	v := g.values[g.pos]
	g.pos++
	return v, true, nil
}

func (g *sliceGenerator) Close() error { return nil }

// chanGenerator drains a channel until it is closed.
type chanGenerator struct {
	ch     <-chan any
	closer func()
}

// FromChannel returns a Generator yielding each value received on ch until
// ch is closed. stop, when non-nil, is called on Close.
func FromChannel(ch <-chan any, stop func()) Generator {
	return &chanGenerator{ch: ch, closer: stop}
}

func (g *chanGenerator) Next(ctx context.Context) (any, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case v, ok := <-g.ch:
		return v, ok, nil
	}
}

func (g *chanGenerator) Close() error {
	if g.closer != nil {
		g.closer()
	}
	return nil
}

// Input returns inputs[i] asserted to T.
func Input[T any](inputs []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(inputs) {
		return zero, fmt.Errorf("input %d out of range (have %d)", i, len(inputs))
	}
	v, ok := inputs[i].(T)
	if !ok {
		return zero, fmt.Errorf("input %d has type %T, want %T", i, inputs[i], zero)
	}
	return v, nil
}
