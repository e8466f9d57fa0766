package stream

import (
	"context"
	"errors"
)

// Observer provides hooks around multiplexer activity so callers can export metrics or
// persist draw statistics. mux is the multiplexer's name and source the input stream's
// name. StreamOpened fires whenever an input is (re)opened, StreamExhausted when a pass
// over an input ends with drawn entries taken from it, and EntryDrawn once per entry
// emitted. StreamClosed fires from Close for every input still open at that point, so
// each StreamOpened is matched by exactly one StreamExhausted or StreamClosed. A hook
// error aborts the pull that triggered it; Close returns it joined with close errors.
type Observer interface {
	StreamOpened(ctx context.Context, mux, source string) error
	StreamExhausted(ctx context.Context, mux, source string, drawn int) error
	StreamClosed(ctx context.Context, mux, source string, drawn int) error
	EntryDrawn(ctx context.Context, mux, source string) error
}

// MultiObserver returns an Observer that calls every non-nil observer in order and
// joins their errors.
func MultiObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	}
	return multiObserver(list)
}

type multiObserver []Observer

func (m multiObserver) StreamOpened(ctx context.Context, mux, source string) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.StreamOpened(ctx, mux, source))
	}
	return errors.Join(errs...)
}

func (m multiObserver) StreamExhausted(ctx context.Context, mux, source string, drawn int) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.StreamExhausted(ctx, mux, source, drawn))
	}
	return errors.Join(errs...)
}

func (m multiObserver) StreamClosed(ctx context.Context, mux, source string, drawn int) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.StreamClosed(ctx, mux, source, drawn))
	}
	return errors.Join(errs...)
}

func (m multiObserver) EntryDrawn(ctx context.Context, mux, source string) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.EntryDrawn(ctx, mux, source))
	}
	return errors.Join(errs...)
}
