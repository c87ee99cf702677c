// Package scan turns the gateway scan stream into connection queue entries.
package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/connq"
	"github.com/srg/blegw/internal/gateway"
)

// Source opens scan subscriptions. *gateway.Client implements it.
type Source interface {
	SubscribeScan(ctx context.Context, filter gateway.ScanFilter) (*gateway.Subscription[gateway.ScanEvent], error)
}

// Enqueuer receives discovered devices. *connq.Queue implements it.
type Enqueuer interface {
	Enqueue(e connq.Entry) bool
}

// Listener consumes the scan stream, records devices and queues them for connection.
type Listener struct {
	src      Source
	filter   gateway.ScanFilter
	queue    Enqueuer
	registry *Registry
	logger   *logrus.Logger
}

// NewListener creates a listener. queue may be nil to only record devices.
func NewListener(src Source, filter gateway.ScanFilter, queue Enqueuer, logger *logrus.Logger) *Listener {
	if logger == nil {
		logger = logrus.New()
	}
	return &Listener{
		src:      src,
		filter:   filter,
		queue:    queue,
		registry: NewRegistry(),
		logger:   logger,
	}
}

// Registry returns the devices seen so far.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// Run subscribes to the scan stream and handles events until the stream ends or ctx is done.
// A transport error is logged and returned; the stream is not reopened.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.src.SubscribeScan(ctx, l.filter)
	if err != nil {
		l.logger.WithError(err).Error("open scan stream failed")
		return fmt.Errorf("open scan stream: %w", err)
	}
	defer sub.Close()

	l.logger.WithFields(logrus.Fields{
		"filter_rssi": l.filter.RSSI,
		"filter_name": l.filter.Name,
		"active":      l.filter.Active,
	}).Info("Subscribing to scan stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				err := sub.Err()
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return err
				}
				l.logger.WithError(err).Error("scan stream failed")
				return fmt.Errorf("scan stream: %w", err)
			}
			l.Handle(ev)
		}
	}
}

// Handle processes one scan event: only the first address is used.
func (l *Listener) Handle(ev gateway.ScanEvent) {
	addr, ok := ev.Primary()
	if !ok {
		l.logger.WithField("name", ev.Name).Debug("Scan event without address, ignoring")
		return
	}

	if l.registry.Observe(addr, ev) {
		l.logger.WithFields(logrus.Fields{
			"device":  ev.Name,
			"address": addr.Address,
			"type":    addr.Kind,
			"rssi":    ev.RSSI,
		}).Info("Discovered new device")
	}

	if l.queue == nil {
		return
	}
	if l.queue.Enqueue(connq.Entry{DeviceID: addr.Address, AddressKind: addr.Kind}) {
		l.logger.WithField("address", addr.Address).Debug("Device queued for connection")
	}
}
