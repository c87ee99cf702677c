package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingWriter records every write so tests can check when writing stops.
type countingWriter struct {
	mu     sync.Mutex
	writes int
	buf    strings.Builder
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	return w.buf.Write(p)
}

func (w *countingWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func (w *countingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestStartRedraw_StopWaitsForLastRedraw(t *testing.T) {
	reg := scan.NewRegistry()
	addr := gateway.Address{Address: "AA:BB:CC:DD:EE:01", Kind: gateway.AddressPublic}
	reg.Observe(addr, gateway.ScanEvent{Addresses: []gateway.Address{addr}, Name: "Sensor", RSSI: -50})

	var out countingWriter
	stop := startRedraw(context.Background(), &out, reg, time.Millisecond)

	require.Eventually(t, func() bool { return out.Writes() > 0 }, time.Second, time.Millisecond)
	stop()

	written := out.Writes()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, written, out.Writes(), "no redraw after stop returned")
	assert.Contains(t, out.String(), clearScreen)
	assert.Contains(t, out.String(), "AA:BB:CC:DD:EE:01")
}

func TestStartRedraw_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out countingWriter
	stop := startRedraw(ctx, &out, scan.NewRegistry(), time.Millisecond)

	cancel()
	stop()

	written := out.Writes()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, written, out.Writes())
}
