package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AddressKind is the BLE address type reported by the gateway and passed back on connect.
type AddressKind string

const (
	AddressPublic AddressKind = "public"
	AddressRandom AddressKind = "random"
)

// ParseAddressKind accepts "public" or "random" (case-insensitive). An empty string means public.
func ParseAddressKind(s string) (AddressKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(AddressPublic):
		return AddressPublic, nil
	case string(AddressRandom):
		return AddressRandom, nil
	default:
		return "", fmt.Errorf("invalid address kind %q: must be public or random", s)
	}
}

// Valid reports whether k is one of the known address kinds.
func (k AddressKind) Valid() bool {
	return k == AddressPublic || k == AddressRandom
}

// Address is one hardware address entry of a scan result.
type Address struct {
	Address string      `json:"bdaddr"`
	Kind    AddressKind `json:"bdaddrType"`
}

// ScanEvent is a single device-discovery message from the scan stream.
//
//	{"bdaddrs":[{"bdaddr":"ED:47:B0:D3:A9:C8","bdaddrType":"public"}],"scanData":"0C09...","name":"Sleepace Z2","rssi":-37,"evt_type":4}
type ScanEvent struct {
	Addresses []Address `json:"bdaddrs"`
	Name      string    `json:"name"`
	RSSI      int       `json:"rssi"`
	EventType int       `json:"evt_type"`
	ScanData  string    `json:"scanData,omitempty"`
	AdData    string    `json:"adData,omitempty"`
}

// Primary returns the first address of the event. Any further addresses are ignored.
func (e ScanEvent) Primary() (Address, bool) {
	if len(e.Addresses) == 0 || e.Addresses[0].Address == "" {
		return Address{}, false
	}
	return e.Addresses[0], true
}

// ParseScanEvent decodes a scan stream payload.
func ParseScanEvent(data []byte) (ScanEvent, error) {
	var ev ScanEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ScanEvent{}, fmt.Errorf("decode scan event: %w", err)
	}
	return ev, nil
}

// Notification is a notification or indication pushed by a connected device.
// Raw always holds the verbatim payload; the other fields are filled when the payload parses.
type Notification struct {
	DeviceID string `json:"id"`
	Handle   int    `json:"handle"`
	Value    string `json:"value"`
	Raw      string `json:"-"`
}

// ParseNotification decodes a notification payload on a best-effort basis. It never fails:
// payloads that are not JSON objects are kept only as Raw.
func ParseNotification(data []byte) (Notification, error) {
	n := Notification{Raw: string(data)}
	var decoded Notification
	if err := json.Unmarshal(data, &decoded); err == nil {
		n.DeviceID = decoded.DeviceID
		n.Handle = decoded.Handle
		n.Value = decoded.Value
	}
	return n, nil
}

// ScanFilter narrows the scan stream on the gateway side.
type ScanFilter struct {
	RSSI   int    // minimum RSSI; 0 disables the filter
	Name   string // name glob such as "Cassia*"; empty disables the filter
	Active bool   // request active scanning so devices answer with scan responses
}

// Query renders the filter as scan stream query parameters.
func (f ScanFilter) Query() url.Values {
	q := url.Values{}
	q.Set("event", "1")
	if f.RSSI != 0 {
		q.Set("filter_rssi", strconv.Itoa(f.RSSI))
	}
	if f.Name != "" {
		q.Set("filter_name", f.Name)
	}
	if f.Active {
		q.Set("active", "1")
	}
	return q
}

// ConnectedNode is a device currently connected to the gateway.
type ConnectedNode struct {
	Address         Address `json:"bdaddrs"`
	Name            string  `json:"name"`
	ChipID          int     `json:"chipId"`
	ConnectionState string  `json:"connectionState"`
}
