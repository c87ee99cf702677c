package scan

import (
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/srg/blegw/internal/gateway"
)

// DeviceRecord is what the scan stream last reported about a device.
type DeviceRecord struct {
	Address     string              `json:"address"`
	AddressKind gateway.AddressKind `json:"address_kind"`
	Name        string              `json:"name"`
	RSSI        int                 `json:"rssi"`
	LastSeen    time.Time           `json:"last_seen"`
	Seen        int                 `json:"seen"`
}

// Registry tracks every device seen on the scan stream.
// Updates come from a single writer; snapshots may be taken concurrently.
type Registry struct {
	devices *hashmap.Map[string, DeviceRecord]
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: hashmap.New[string, DeviceRecord](),
		now:     time.Now,
	}
}

// Observe records a scan event for addr. It reports whether the device is new.
func (r *Registry) Observe(addr gateway.Address, ev gateway.ScanEvent) bool {
	k := blelib.NewAddr(addr.Address).String()

	rec, existing := r.devices.Get(k)
	if !existing {
		rec = DeviceRecord{Address: addr.Address}
	}
	rec.AddressKind = addr.Kind
	if ev.Name != "" {
		rec.Name = ev.Name
	}
	rec.RSSI = ev.RSSI
	rec.LastSeen = r.now()
	rec.Seen++

	r.devices.Set(k, rec)
	return !existing
}

// Len returns the number of distinct devices seen.
func (r *Registry) Len() int {
	return r.devices.Len()
}

// Get returns the record for addr.
func (r *Registry) Get(addr string) (DeviceRecord, bool) {
	return r.devices.Get(blelib.NewAddr(addr).String())
}

// Snapshot returns all records, strongest signal first.
func (r *Registry) Snapshot() []DeviceRecord {
	out := make([]DeviceRecord, 0, r.devices.Len())
	r.devices.Range(func(_ string, rec DeviceRecord) bool {
		out = append(out, rec)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}
