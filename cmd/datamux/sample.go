package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dcshock/datamux/config"
	"github.com/dcshock/datamux/logging"
	"github.com/dcshock/datamux/metrics"
	"github.com/dcshock/datamux/observer"
	"github.com/dcshock/datamux/stream"
)

type sampleOptions struct {
	count       int
	workers     int
	rank        int
	worldSize   int
	statsDB     string
	metricsAddr string
}

func newSampleCommand(cc *commandContext) *cobra.Command {
	opts := sampleOptions{}
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw entries and report how they split by origin and tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd, cc, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1000, "Total entries to draw")
	cmd.Flags().IntVar(&opts.workers, "workers", 1, "Concurrent consumers, each with its own seed")
	cmd.Flags().IntVar(&opts.rank, "seed-rank", 0, "Rank mixed into randomized seeds")
	cmd.Flags().IntVar(&opts.worldSize, "world-size", 1, "Number of ranks")
	cmd.Flags().StringVar(&opts.statsDB, "stats-db", "", "SQLite file recording per-source draw statistics")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while sampling")
	return cmd
}

func runSample(cmd *cobra.Command, cc *commandContext, opts sampleOptions) error {
	if opts.count < 0 {
		return fmt.Errorf("count must not be negative (got %d)", opts.count)
	}
	if opts.workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", opts.workers)
	}
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	var observers []stream.Observer
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.NewObserver(reg)
		if err != nil {
			return err
		}
		observers = append(observers, m)
		stop, err := serveMetrics(opts.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
		logger.Info("serving metrics", "addr", opts.metricsAddr)
	}

	var ledger *observer.Ledger
	if opts.statsDB != "" {
		l, err := observer.Open(opts.statsDB)
		if err != nil {
			return fmt.Errorf("open stats db: %w", err)
		}
		defer l.Close()
		ledger = l
		observers = append(observers, l)
	}

	cfg, s, _, err := cc.build(ctx, stream.MultiObserver(observers...))
	if err != nil {
		return err
	}
	keys, err := tagKeys(cfg)
	if err != nil {
		return err
	}

	if ledger != nil {
		runID, err := ledger.StartRun(ctx, cc.configPath, cfg.Seed)
		if err != nil {
			return err
		}
		logger = logger.With(logging.FieldRunID, runID.String())
	}

	counts := newSampleCounts()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.workers; w++ {
		quota := opts.count / opts.workers
		if w < opts.count%opts.workers {
			quota++
		}
		consumer := stream.Consumer{Rank: opts.rank, WorldSize: opts.worldSize, Worker: w, NumWorkers: opts.workers}
		g.Go(func() error {
			local, err := draw(stream.WithConsumer(gctx, consumer), s, quota, keys)
			if err != nil {
				return fmt.Errorf("worker %d: %w", consumer.Worker, err)
			}
			mu.Lock()
			counts.merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ledger != nil {
		if err := ledger.FinishRun(ctx); err != nil {
			return err
		}
	}
	logger.Info("sampling finished", "entries", counts.total, "workers", opts.workers)

	counts.render(cmd.OutOrStdout())
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// tagKeys returns every tag key named anywhere in the configuration.
func tagKeys(cfg *config.DataConfig) ([]string, error) {
	keys := make(map[string]struct{})
	for k := range cfg.Tags {
		keys[k] = struct{}{}
	}
	nodes := cfg.InputConfig.Nodes
	if cfg.InputConfig.File != "" {
		loaded, err := config.LoadNodes(cfg.InputConfig.File)
		if err != nil {
			return nil, err
		}
		nodes = loaded
	}
	var visit func([]config.Node)
	visit = func(nodes []config.Node) {
		for _, n := range nodes {
			for k := range n.Tags {
				keys[k] = struct{}{}
			}
			visit(n.Components)
		}
	}
	visit(nodes)
	return slices.Sorted(maps.Keys(keys)), nil
}

type sampleCounts struct {
	total   int
	origins map[string]int
	tags    map[string]int
}

func newSampleCounts() *sampleCounts {
	return &sampleCounts{origins: make(map[string]int), tags: make(map[string]int)}
}

func (c *sampleCounts) add(e *stream.Entry, keys []string) {
	c.total++
	c.origins[e.Origin]++
	for _, k := range keys {
		if v, ok := e.Get(k); ok {
			c.tags[k+"="+fmt.Sprint(v)]++
		}
	}
}

func (c *sampleCounts) merge(o *sampleCounts) {
	c.total += o.total
	for k, v := range o.origins {
		c.origins[k] += v
	}
	for k, v := range o.tags {
		c.tags[k] += v
	}
}

func (c *sampleCounts) render(w io.Writer) {
	fmt.Fprintln(w, renderTable([]string{"Origin", "Entries", "Share"}, c.rows(c.origins),
		[]columnAlignment{alignLeft, alignRight, alignRight}))
	if len(c.tags) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Tag", "Entries", "Share"}, c.rows(c.tags),
			[]columnAlignment{alignLeft, alignRight, alignRight}))
	}
	fmt.Fprintf(w, "total: %d\n", c.total)
}

func (c *sampleCounts) rows(m map[string]int) [][]string {
	rows := make([][]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		share := 0.0
		if c.total > 0 {
			share = float64(m[k]) / float64(c.total)
		}
		rows = append(rows, []string{k, strconv.Itoa(m[k]), formatShare(share)})
	}
	return rows
}

// draw pulls n entries from a fresh pass over s.
func draw(ctx context.Context, s *stream.Stream, n int, keys []string) (*sampleCounts, error) {
	counts := newSampleCounts()
	if n == 0 {
		return counts, nil
	}
	it, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for counts.total < n {
		e, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		counts.add(e, keys)
	}
	return counts, nil
}
