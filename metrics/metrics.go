// Package metrics exports multiplexer activity as Prometheus metrics.
//
// NewObserver returns a stream.Observer; attach it through config.BuildOptions.Observer
// or stream.MuxOptions.Observer, alone or combined with others via stream.MultiObserver.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dcshock/datamux/stream"
)

const (
	namespace = "datamux"
	subsystem = "mux"
)

// Observer counts draws, opens and exhaustions per multiplexer and input.
type Observer struct {
	drawn     *prometheus.CounterVec
	opens     *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	open      *prometheus.GaugeVec
}

var _ stream.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer. Collectors already registered under the same name are
// reused, so two observers on one registry share their series.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		drawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries_drawn_total",
			Help:      "Entries emitted by a multiplexer, by input stream.",
		}, []string{"mux", "source"}),
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_opens_total",
			Help:      "Times a multiplexer opened or reopened an input stream.",
		}, []string{"mux", "source"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_exhausted_total",
			Help:      "Times an input stream ran out and was retired by a bounded multiplexer.",
		}, []string{"mux", "source"}),
		open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "open_streams",
			Help:      "Input streams opened and not yet retired or closed, by multiplexer.",
		}, []string{"mux"}),
	}

	var err error
	if o.drawn, err = register(reg, o.drawn); err != nil {
		return nil, err
	}
	if o.opens, err = register(reg, o.opens); err != nil {
		return nil, err
	}
	if o.exhausted, err = register(reg, o.exhausted); err != nil {
		return nil, err
	}
	if o.open, err = register(reg, o.open); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("metrics: register collector: %w", err)
}

// StreamOpened implements stream.Observer.
func (o *Observer) StreamOpened(_ context.Context, mux, source string) error {
	o.opens.WithLabelValues(mux, source).Inc()
	o.open.WithLabelValues(mux).Inc()
	return nil
}

// StreamExhausted implements stream.Observer.
func (o *Observer) StreamExhausted(_ context.Context, mux, source string, _ int) error {
	o.exhausted.WithLabelValues(mux, source).Inc()
	o.open.WithLabelValues(mux).Dec()
	return nil
}

// StreamClosed implements stream.Observer.
func (o *Observer) StreamClosed(_ context.Context, mux, _ string, _ int) error {
	o.open.WithLabelValues(mux).Dec()
	return nil
}

// EntryDrawn implements stream.Observer.
func (o *Observer) EntryDrawn(_ context.Context, mux, source string) error {
	o.drawn.WithLabelValues(mux, source).Inc()
	return nil
}
