// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller runs the inverter polling loop: it opens the stream,
// queries the device on a fixed cadence, publishes every reading and
// re-opens the stream when an exchange leaves it out of step.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/metrics"
	"github.com/Thermoquad/mpqtt/internal/publish"
	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

// Dialer opens a fresh stream to the inverter.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Options configures a Poller. Metrics and Logger are optional.
type Options struct {
	Dial     Dialer
	Sink     *publish.Sink
	Inverter config.InverterConfig
	Poll     config.PollConfig
	Mode     string
	Debug    bool
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Poller owns the inverter stream for the lifetime of Run.
type Poller struct {
	dial    Dialer
	sink    *publish.Sink
	inv     config.InverterConfig
	poll    config.PollConfig
	mode    string
	debug   bool
	metrics *metrics.Metrics
	logger  *zap.Logger
	store   *Store
	limiter *rate.Limiter

	minBackoff time.Duration
	maxBackoff time.Duration

	conn   io.ReadWriteCloser
	driver *pi30.Inverter
	dirty  bool
	ready  atomic.Bool
}

func New(opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.Inverter.MinCommandInterval > 0 {
		limit = rate.Every(opts.Inverter.MinCommandInterval)
	}

	return &Poller{
		dial:       opts.Dial,
		sink:       opts.Sink,
		inv:        opts.Inverter,
		poll:       opts.Poll,
		mode:       opts.Mode,
		debug:      opts.Debug,
		metrics:    opts.Metrics,
		logger:     logger,
		store:      NewStore(),
		limiter:    rate.NewLimiter(limit, 1),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Store returns the latest readings.
func (p *Poller) Store() *Store {
	return p.store
}

// Ready reports whether the stream is open and a full cycle has completed
// since it was opened.
func (p *Poller) Ready() bool {
	return p.ready.Load()
}

// Run polls until ctx is cancelled. It only returns ctx's error.
func (p *Poller) Run(ctx context.Context) error {
	first := true
	for {
		if err := p.connect(ctx); err != nil {
			return err
		}
		if !first && p.metrics != nil {
			p.metrics.ReconnectTotal.Inc()
		}
		first = false

		err := p.session(ctx)
		p.disconnect()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("inverter session ended, reconnecting", zap.Error(err))
		if err := sleep(ctx, p.minBackoff); err != nil {
			return err
		}
	}
}

func (p *Poller) connect(ctx context.Context) error {
	backoff := p.minBackoff
	for {
		conn, err := p.dial(ctx)
		if err == nil {
			p.conn = conn
			p.driver = pi30.New(conn, p.driverOptions()...)
			if p.metrics != nil {
				p.metrics.SetConnected(true)
			}
			p.logger.Info("inverter stream opened")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Warn("open inverter failed", zap.Error(err), zap.Duration("retry_in", backoff))
		p.report("connect", err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, p.maxBackoff)
	}
}

func (p *Poller) driverOptions() []pi30.Option {
	opts := []pi30.Option{
		pi30.WithLogger(p.logger.Named("pi30")),
		pi30.WithStrictMarker(p.inv.StrictMarker),
	}
	if p.metrics != nil {
		opts = append(opts, pi30.WithObserver(p.metrics))
	}
	return opts
}

func (p *Poller) disconnect() {
	p.ready.Store(false)
	if p.metrics != nil {
		p.metrics.SetConnected(false)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Debug("close inverter stream", zap.Error(err))
		}
	}
	p.conn = nil
	p.driver = nil
}

func (p *Poller) session(ctx context.Context) error {
	if err := p.initialize(ctx); err != nil {
		return err
	}
	for {
		if err := p.cycle(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, p.poll.OuterDelay); err != nil {
			return err
		}
	}
}

// initialize reads the identity of the device. Some models do not answer
// QID, so its failure is only logged.
func (p *Poller) initialize(ctx context.Context) error {
	if sn, err := execute(ctx, p, commands.SerialNumber{}); err != nil {
		if pi30.Resync(err) {
			return err
		}
		p.logger.Info("serial number unavailable", zap.Error(err))
	} else {
		p.record("QID", sn)
	}

	if err := poll(ctx, p, commands.ProtocolID{}); err != nil {
		return err
	}
	return poll(ctx, p, commands.FirmwareVersion{})
}

func (p *Poller) cycle(ctx context.Context) error {
	p.dirty = false
	start := time.Now()

	for i := 0; i < p.poll.InnerIterations; i++ {
		if err := p.pollStatus(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, p.poll.InnerDelay); err != nil {
			return err
		}
	}
	inner := time.Since(start)

	if err := poll(ctx, p, commands.DeviceMode{}); err != nil {
		return err
	}
	if p.mode != config.ModePhocos {
		if err := poll(ctx, p, commands.RatingInfo{}); err != nil {
			return err
		}
	}
	if err := poll(ctx, p, commands.WarningStatus{}); err != nil {
		return err
	}
	outer := time.Since(start)

	if p.metrics != nil {
		p.metrics.ObserveCycle(outer, inner)
	}
	p.logPublish("stats", p.sink.Stats(publish.Stats{
		OuterUpdateDuration: outer.Milliseconds(),
		InnerUpdateDuration: inner.Milliseconds(),
	}))
	if !p.dirty {
		p.logPublish("error", p.sink.ClearError())
	}
	p.ready.Store(true)
	return nil
}

// pollStatus reads the fast-changing values. Phocos units answer QPGSn for
// each unit of the parallel system instead of QPIGS; QPGS0 is only polled
// in debug mode to spare the link.
func (p *Poller) pollStatus(ctx context.Context) error {
	if p.mode != config.ModePhocos {
		return poll(ctx, p, commands.GeneralStatus{})
	}

	first := 1
	if p.debug {
		first = 0
	}
	for i := first; i <= 2; i++ {
		if err := poll(ctx, p, commands.ParallelStatus{Index: i}); err != nil {
			return err
		}
	}
	return nil
}

// poll executes cmd and publishes the result. Payload and encoding errors
// are reported and swallowed; anything that leaves the stream out of step
// is returned.
func poll[R any](ctx context.Context, p *Poller, cmd pi30.Command[R]) error {
	name := pi30.CommandName(cmd)
	v, err := execute(ctx, p, cmd)
	if err != nil {
		p.report(name, err)
		if pi30.Resync(err) {
			return err
		}
		return nil
	}
	p.record(name, v)
	return nil
}

func execute[R any](ctx context.Context, p *Poller, cmd pi30.Command[R]) (R, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		var zero R
		return zero, err
	}
	return ExecuteTimeout(ctx, p.driver, p.conn, p.inv.CommandTimeout, cmd)
}

// ExecuteTimeout runs cmd on inv and gives up after timeout. On timeout
// stream is closed, which unblocks the pending read; the driver must then be
// discarded.
func ExecuteTimeout[R any](ctx context.Context, inv *pi30.Inverter, stream io.Closer, timeout time.Duration, cmd pi30.Command[R]) (R, error) {
	var zero R

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   R
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := pi30.Execute[R](inv, cmd)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if stream != nil {
			_ = stream.Close()
		}
		return zero, fmt.Errorf("%s: %w", pi30.CommandName(cmd), ctx.Err())
	}
}

func (p *Poller) record(name string, v any) {
	p.store.Set(name, v)
	p.logPublish(name, p.sink.Reading(name, v))
}

func (p *Poller) report(name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	p.dirty = true
	p.logger.Warn("command failed", zap.String("cmd", name), zap.Error(err))
	p.logPublish("error", p.sink.Error(name, err))
}

func (p *Poller) logPublish(what string, err error) {
	if err == nil {
		return
	}
	if p.metrics != nil {
		p.metrics.PublishErrors.Inc()
	}
	p.logger.Warn("publish failed", zap.String("topic", what), zap.Error(err))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
