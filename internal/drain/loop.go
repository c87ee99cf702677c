// Package drain connects queued devices one at a time and enables their notifications.
//
// The loop alternates between two states. While Draining it dequeues a device, connects to it
// and, if the connection succeeded, writes the notification-enable value to its configuration
// handle. When the queue is empty it is Idle-Waiting: a timer is armed and the queue is checked
// again once the interval elapsed, whatever happened in between.
package drain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/connq"
	"github.com/srg/blegw/internal/gateway"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultInterval       = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultNotifyHandle   = 17
	DefaultNotifyValue    = "0200"
)

// Gateway performs the per-device calls. *gateway.Client implements it.
type Gateway interface {
	Connect(ctx context.Context, deviceID string, kind gateway.AddressKind, timeout time.Duration) (string, error)
	WriteHandle(ctx context.Context, deviceID string, handle int, value string) (string, error)
}

// Dequeuer supplies devices to connect. *connq.Queue implements it.
type Dequeuer interface {
	Dequeue() (connq.Entry, bool)
}

// Stage names the step an attempt stopped at.
type Stage string

const (
	StageConnect Stage = "connect"
	StageWrite   Stage = "write"
	StageDone    Stage = "done"
)

// Result describes one connect + enable-notify attempt.
type Result struct {
	AttemptID   string
	Entry       connq.Entry
	Stage       Stage
	ConnectBody string
	WriteBody   string
	Err         error
	Started     time.Time
	Duration    time.Duration
}

// Options configure a Loop.
type Options struct {
	Interval       time.Duration // delay between an empty queue and the next pass
	ConnectTimeout time.Duration // timeout the gateway applies to a connection attempt
	NotifyHandle   int           // handle of the client characteristic configuration descriptor
	NotifyValue    string        // hex value written to NotifyHandle
	OnAttempt      func(Result)  // optional observer, called after each attempt
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.NotifyHandle <= 0 {
		o.NotifyHandle = DefaultNotifyHandle
	}
	if o.NotifyValue == "" {
		o.NotifyValue = DefaultNotifyValue
	}
	return o
}

// Loop is the connect-drain loop.
type Loop struct {
	gw     Gateway
	queue  Dequeuer
	opts   Options
	logger *logrus.Logger

	passes    atomic.Int64
	attempts  atomic.Int64
	failures  atomic.Int64
	lastEmpty atomic.Int64 // unix nanos of the last time the queue was found empty
}

// New creates a loop draining queue through gw.
func New(gw Gateway, queue Dequeuer, opts Options, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		gw:     gw,
		queue:  queue,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Options returns the effective options.
func (l *Loop) Options() Options {
	return l.opts
}

// Run drains the queue immediately, then again each time the interval elapses after the queue
// was found empty. It returns ctx.Err() once ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.WithFields(logrus.Fields{
		"interval":      l.opts.Interval,
		"notify_handle": l.opts.NotifyHandle,
		"notify_value":  l.opts.NotifyValue,
	}).Info("Connect loop started")

	l.DrainOnce(ctx)

	timer := time.NewTimer(l.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.WithFields(logrus.Fields{
				"passes":   l.passes.Load(),
				"attempts": l.attempts.Load(),
				"failures": l.failures.Load(),
			}).Info("Connect loop stopped")
			return ctx.Err()
		case <-timer.C:
			l.DrainOnce(ctx)
			timer.Reset(l.opts.Interval)
		}
	}
}

// DrainOnce attempts every queued device in turn until the queue is empty or ctx is done.
// It returns the number of devices attempted.
func (l *Loop) DrainOnce(ctx context.Context) int {
	l.passes.Add(1)
	count := 0
	for ctx.Err() == nil {
		entry, ok := l.queue.Dequeue()
		if !ok {
			l.lastEmpty.Store(time.Now().UnixNano())
			break
		}
		l.Attempt(ctx, entry)
		count++
	}
	return count
}

// Attempt connects to one device and enables its notifications. Failures are logged and
// returned in the result; they never stop the loop.
func (l *Loop) Attempt(ctx context.Context, entry connq.Entry) Result {
	res := Result{
		AttemptID: uuid.NewString(),
		Entry:     entry,
		Stage:     StageConnect,
		Started:   time.Now(),
	}
	l.attempts.Add(1)

	log := l.logger.WithFields(logrus.Fields{
		"attempt": res.AttemptID,
		"address": entry.DeviceID,
		"type":    entry.AddressKind,
	})
	log.Info("Connecting device")

	res.ConnectBody, res.Err = l.gw.Connect(ctx, entry.DeviceID, entry.AddressKind, l.opts.ConnectTimeout)
	if res.Err == nil {
		res.Stage = StageWrite
		res.WriteBody, res.Err = l.gw.WriteHandle(ctx, entry.DeviceID, l.opts.NotifyHandle, l.opts.NotifyValue)
		if res.Err == nil {
			res.Stage = StageDone
		}
	}
	res.Duration = time.Since(res.Started)

	if res.Err != nil {
		res.Err = fmt.Errorf("%s %s: %w", res.Stage, entry.DeviceID, res.Err)
		l.failures.Add(1)
		log.WithError(res.Err).WithField("stage", res.Stage).Warn("Connect failed")
	} else {
		log.WithFields(logrus.Fields{
			"result":   res.ConnectBody,
			"duration": res.Duration,
		}).Info("Connected and notifications enabled")
	}

	if l.opts.OnAttempt != nil {
		l.opts.OnAttempt(res)
	}
	return res
}

// Stats reports loop counters.
type Stats struct {
	Passes   int64
	Attempts int64
	Failures int64
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Passes:   l.passes.Load(),
		Attempts: l.attempts.Load(),
		Failures: l.failures.Load(),
	}
}

// LastEmpty returns when the queue was last found empty, or the zero time.
func (l *Loop) LastEmpty() time.Time {
	ns := l.lastEmpty.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
