// Package notify logs the gateway notification stream.
//
// The notification stream carries notifications and indications of every connected device,
// keyed by device address, so it needs no coordination with the connection queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/gateway"
)

// MaxBufferSize sets an upper limit on the buffer size to guard against accidental misconfiguration.
const MaxBufferSize uint32 = 64 * 1024

// Source opens notification subscriptions. *gateway.Client implements it.
type Source interface {
	SubscribeNotifications(ctx context.Context) (*gateway.Subscription[gateway.Notification], error)
}

// Listener logs every notification and keeps the most recent ones in a ring buffer.
// When the buffer is full the oldest notification is overwritten, so the stream is never blocked
// by a slow consumer.
type Listener struct {
	src    Source
	buffer mpmc.RichOverlappedRingBuffer[gateway.Notification]
	logger *logrus.Logger

	received    atomic.Int64
	overwritten atomic.Int64
}

// NewListener creates a listener buffering up to bufferSize notifications.
func NewListener(src Source, bufferSize uint32, logger *logrus.Logger) (*Listener, error) {
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Listener{
		src:    src,
		buffer: mpmc.NewOverlappedRingBuffer[gateway.Notification](bufferSize),
		logger: logger,
	}, nil
}

// Run subscribes to the notification stream until it ends or ctx is done.
// A transport error is logged and returned; the stream is not reopened.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.src.SubscribeNotifications(ctx)
	if err != nil {
		l.logger.WithError(err).Error("open notify stream failed")
		return fmt.Errorf("open notify stream: %w", err)
	}
	defer sub.Close()

	l.logger.Info("Subscribing to notification stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-sub.C():
			if !ok {
				err := sub.Err()
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return err
				}
				l.logger.WithError(err).Error("notify stream failed")
				return fmt.Errorf("notify stream: %w", err)
			}
			if err := l.Handle(n); err != nil {
				return err
			}
		}
	}
}

// Handle logs n verbatim and buffers it.
func (l *Listener) Handle(n gateway.Notification) error {
	l.logger.WithField("payload", n.Raw).Info("Received notification")
	l.received.Add(1)

	overwrites, err := l.buffer.EnqueueM(n)
	if err != nil {
		return fmt.Errorf("unexpected buffer.Enqueue error: %w", err)
	}
	l.overwritten.Add(int64(overwrites))
	return nil
}

// Drain passes every buffered notification to fn, oldest first, and returns how many were passed.
func (l *Listener) Drain(fn func(gateway.Notification)) (int, error) {
	count := 0
	for !l.buffer.IsEmpty() {
		n, err := l.buffer.Dequeue()
		if err != nil {
			return count, fmt.Errorf("buffer dequeue error: %w", err)
		}
		fn(n)
		count++
	}
	return count, nil
}

// Received returns the number of notifications seen since the listener was created.
func (l *Listener) Received() int64 {
	return l.received.Load()
}

// Overwritten returns the number of buffered notifications lost to overflow.
func (l *Listener) Overwritten() int64 {
	return l.overwritten.Load()
}
