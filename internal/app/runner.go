// Package app wires the connection queue, both stream listeners and the connect loop into one
// long-running process.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/connq"
	"github.com/srg/blegw/internal/drain"
	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/groutine"
	"github.com/srg/blegw/internal/notify"
	"github.com/srg/blegw/internal/scan"
	"github.com/srg/blegw/pkg/config"
)

// Gateway is everything the runner needs from the gateway. *gateway.Client implements it.
type Gateway interface {
	scan.Source
	notify.Source
	drain.Gateway
}

// Runner owns the device queue and the components sharing it.
type Runner struct {
	queue    *connq.Queue
	scanner  *scan.Listener
	notifier *notify.Listener
	loop     *drain.Loop
	logger   *logrus.Logger
}

// New builds a runner from cfg. onAttempt may be nil.
func New(cfg *config.Config, gw Gateway, logger *logrus.Logger, onAttempt func(drain.Result)) (*Runner, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	queue := connq.New()
	filter := gateway.ScanFilter{
		RSSI:   cfg.Scan.FilterRSSI,
		Name:   cfg.Scan.FilterName,
		Active: cfg.Scan.Active,
	}

	notifier, err := notify.NewListener(gw, cfg.Notify.BufferSize, logger)
	if err != nil {
		return nil, fmt.Errorf("notification listener: %w", err)
	}

	return &Runner{
		queue:    queue,
		scanner:  scan.NewListener(gw, filter, queue, logger),
		notifier: notifier,
		loop: drain.New(gw, queue, drain.Options{
			Interval:       cfg.Drain.Interval,
			ConnectTimeout: cfg.Connect.Timeout,
			NotifyHandle:   cfg.Connect.NotifyHandle,
			NotifyValue:    cfg.Connect.NotifyValue,
			OnAttempt:      onAttempt,
		}, logger),
		logger: logger,
	}, nil
}

// Queue returns the device queue shared by the scan listener and the connect loop.
func (r *Runner) Queue() *connq.Queue {
	return r.queue
}

// Registry returns the devices seen on the scan stream.
func (r *Runner) Registry() *scan.Registry {
	return r.scanner.Registry()
}

// Notifications returns the notification listener and its buffer.
func (r *Runner) Notifications() *notify.Listener {
	return r.notifier
}

// Loop returns the connect loop.
func (r *Runner) Loop() *drain.Loop {
	return r.loop
}

// Run starts both listeners and drives the connect loop until ctx is done.
// A listener that stops is logged and not restarted; the connect loop keeps running.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listeners groutine.Group
	listeners.Go(ctx, "scan-listener", r.watch("scan", r.scanner.Run))
	listeners.Go(ctx, "notify-listener", r.watch("notify", r.notifier.Run))

	err := r.loop.Run(ctx)

	cancel()
	if lerr := listeners.Wait(); lerr != nil {
		r.logger.WithError(lerr).Debug("Listener errors at shutdown")
	}

	stats := r.loop.Stats()
	r.logger.WithFields(logrus.Fields{
		"devices_seen":  r.scanner.Registry().Len(),
		"queued":        r.queue.Len(),
		"attempts":      stats.Attempts,
		"failures":      stats.Failures,
		"notifications": r.notifier.Received(),
	}).Info("Gateway client stopped")
	return err
}

func (r *Runner) watch(name string, run func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(err).WithField("listener", name).Warn("Listener stopped, not reconnecting")
		}
		return err
	}
}
