package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/groutine"
	"gopkg.in/cenkalti/backoff.v1"
)

// streamBuffer is the number of parsed events a subscription holds before the reader blocks.
const streamBuffer = 64

// Subscription is a single, non-restartable event stream.
//
// Events are delivered on C until the stream ends; C is then closed and Err reports why.
// A subscription is never reconnected: once it ends, open a new one.
type Subscription[T any] struct {
	name   string
	events chan T
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.events
}

// Done is closed when the subscription has ended.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the subscription ended: the transport error, ErrStreamClosed when the
// gateway closed the stream, or the context error after Close/cancellation. Nil while running.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription and waits for its reader to stop.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// SubscribeScan opens the scan event stream.
func (c *Client) SubscribeScan(ctx context.Context, filter ScanFilter) (*Subscription[ScanEvent], error) {
	return subscribe(ctx, c, "scan-stream", c.endpoint(filter.Query(), "gap", "nodes"), ParseScanEvent)
}

// SubscribeNotifications opens the notification/indication event stream for all connected devices.
func (c *Client) SubscribeNotifications(ctx context.Context) (*Subscription[Notification], error) {
	return subscribe(ctx, c, "notify-stream", c.endpoint(nil, "gatt", "nodes"), ParseNotification)
}

func subscribe[T any](ctx context.Context, c *Client, name, u string, parse func([]byte) (T, error)) (*Subscription[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	sub := &Subscription[T]{
		name:   name,
		events: make(chan T, streamBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	logger := c.logger.WithFields(logrus.Fields{
		"stream": name,
		"url":    u,
	})

	client := sse.NewClient(u)
	client.Connection = c.stream
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return &StatusError{Op: "open " + name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	client.OnConnect(func(*sse.Client) {
		logger.Debug("Event stream connected")
	})
	client.OnDisconnect(func(*sse.Client) {
		logger.Debug("Event stream disconnected")
	})

	groutine.Go(ctx, name, func(ctx context.Context) {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			ev, err := parse(msg.Data)
			if err != nil {
				logger.WithError(err).WithField("payload", string(msg.Data)).Warn("Dropping malformed event")
				return
			}
			select {
			case sub.events <- ev:
			case <-ctx.Done():
			}
		})

		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case err == nil || errors.Is(err, io.EOF):
			err = ErrStreamClosed
		}

		sub.mu.Lock()
		sub.err = err
		sub.mu.Unlock()

		close(sub.events)
		close(sub.done)
	})

	return sub, nil
}
