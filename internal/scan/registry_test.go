package scan

import (
	"testing"
	"time"

	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Observe(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	addr := gateway.Address{Address: "ED:47:B0:D3:A9:C8", Kind: gateway.AddressPublic}

	assert.True(t, r.Observe(addr, gateway.ScanEvent{Name: "Sleepace Z2", RSSI: -37}))

	now = now.Add(time.Second)
	lower := gateway.Address{Address: "ed:47:b0:d3:a9:c8", Kind: gateway.AddressPublic}
	assert.False(t, r.Observe(lower, gateway.ScanEvent{RSSI: -40}), "address comparison MUST be case-insensitive")

	rec, ok := r.Get("ED:47:B0:D3:A9:C8")
	require.True(t, ok)
	assert.Equal(t, 1, r.Len())

	testutils.NewJSONAsserter(t).AssertValue(rec, `{
		"address": "ED:47:B0:D3:A9:C8",
		"address_kind": "public",
		"name": "Sleepace Z2",
		"rssi": -40,
		"last_seen": "2025-03-01T12:00:01Z",
		"seen": 2
	}`)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	observe := func(mac string, rssi int) {
		r.Observe(gateway.Address{Address: mac, Kind: gateway.AddressRandom}, gateway.ScanEvent{RSSI: rssi})
	}
	observe("AA:00:00:00:00:03", -70)
	observe("AA:00:00:00:00:01", -40)
	observe("AA:00:00:00:00:02", -70)

	snap := r.Snapshot()
	require.Len(t, snap, 3)

	testutils.NewJSONAsserter(t).AssertValue(snap, `[
		{"address": "AA:00:00:00:00:01", "rssi": -40},
		{"address": "AA:00:00:00:00:02", "rssi": -70},
		{"address": "AA:00:00:00:00:03", "rssi": -70}
	]`)
}
