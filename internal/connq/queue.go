// Package connq holds the queue of devices waiting for a connection attempt.
//
// The gateway accepts only one connection attempt at a time, so discovered devices are queued
// and connected one by one. A device is queued at most once until it is dequeued again.
package connq

import (
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blegw/internal/gateway"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is a device waiting to be connected.
type Entry struct {
	DeviceID    string
	AddressKind gateway.AddressKind
}

// Queue is a de-duplicating queue with last-in-first-out removal.
// It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, Entry] // membership key -> entry, in insertion order
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		entries: orderedmap.New[string, Entry](),
	}
}

// Enqueue adds e unless its device is already queued. It reports whether e was added.
func (q *Queue) Enqueue(e Entry) bool {
	k := key(e.DeviceID)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, present := q.entries.Get(k); present {
		return false
	}
	q.entries.Set(k, e)
	return true
}

// Dequeue removes and returns the most recently added entry.
// ok is false when the queue is empty.
func (q *Queue) Dequeue() (e Entry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	newest := q.entries.Newest()
	if newest == nil {
		return Entry{}, false
	}
	q.entries.Delete(newest.Key)
	return newest.Value, true
}

// Len returns the number of queued devices.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// Contains reports whether deviceID is queued.
func (q *Queue) Contains(deviceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, present := q.entries.Get(key(deviceID))
	return present
}

// key normalizes a hardware address so "AA:BB.." and "aa:bb.." are the same device.
func key(deviceID string) string {
	return blelib.NewAddr(deviceID).String()
}
