package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/srg/blegw/internal/gateway"
)

// Event stream names on the embedded sse.Server.
const (
	scanStream   = "scan"
	notifyStream = "notify"
)

// RecordedRequest is a REST call received by the FakeGateway.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
	At     time.Time
}

// Response is a canned gateway answer.
type Response struct {
	Status int
	Body   string
}

// FakeGateway is an in-process gateway serving the REST calls and both event streams.
//
//	gw := testutils.NewFakeGateway(t).
//	    WithConnectResponse("AA:BB:CC:DD:EE:01", 500, "chip is busy")
//	gw.PushScan(`{"bdaddrs":[{"bdaddr":"AA:BB:CC:DD:EE:01","bdaddrType":"public"}]}`)
//
// Pushed events are kept and replayed to every stream opened later, until CloseStreams.
type FakeGateway struct {
	Server *httptest.Server

	mu         sync.Mutex
	requests   []RecordedRequest
	connect    map[string]Response
	write      map[string]Response
	disconnect map[string]Response
	values     map[string]string
	connected  []gateway.ConnectedNode
	openStatus map[string]int

	events      *sse.Server
	subsMu      sync.Mutex
	subs        map[string]int
	subsChanged chan struct{}
}

// NewFakeGateway starts a fake gateway that is shut down when the test ends.
func NewFakeGateway(t testing.TB) *FakeGateway {
	t.Helper()

	g := &FakeGateway{
		connect:     map[string]Response{},
		write:       map[string]Response{},
		disconnect:  map[string]Response{},
		values:      map[string]string{},
		openStatus:  map[string]int{},
		events:      sse.New(),
		subs:        map[string]int{},
		subsChanged: make(chan struct{}),
	}
	g.events.AutoReplay = true
	g.events.OnSubscribe = func(stream string, _ *sse.Subscriber) { g.countSubscriber(stream, 1) }
	g.events.OnUnsubscribe = func(stream string, _ *sse.Subscriber) { g.countSubscriber(stream, -1) }
	g.events.CreateStream(scanStream)
	g.events.CreateStream(notifyStream)

	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))

	t.Cleanup(func() {
		g.events.Close()
		g.Server.Close()
	})
	return g
}

// URL returns the gateway base URL.
func (g *FakeGateway) URL() string {
	return g.Server.URL
}

// WithConnectResponse sets the answer to connect requests for mac. Unset devices get 200 "OK".
func (g *FakeGateway) WithConnectResponse(mac string, status int, body string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connect[normMAC(mac)] = Response{Status: status, Body: body}
	return g
}

// WithWriteResponse sets the answer to handle writes for mac. Unset devices get 200 "OK".
func (g *FakeGateway) WithWriteResponse(mac string, status int, body string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.write[normMAC(mac)] = Response{Status: status, Body: body}
	return g
}

// WithDisconnectResponse sets the answer to disconnect requests for mac. Unset devices get 200 "OK".
func (g *FakeGateway) WithDisconnectResponse(mac string, status int, body string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnect[normMAC(mac)] = Response{Status: status, Body: body}
	return g
}

// WithHandleValue sets the hex value returned when handle of mac is read.
func (g *FakeGateway) WithHandleValue(mac string, handle int, value string) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[normMAC(mac)+"/"+strconv.Itoa(handle)] = value
	return g
}

// WithConnected sets the connected device list.
func (g *FakeGateway) WithConnected(nodes ...gateway.ConnectedNode) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = nodes
	return g
}

// WithStreamStatus makes the event stream at path ("/gap/nodes" or "/gatt/nodes") answer status.
func (g *FakeGateway) WithStreamStatus(path string, status int) *FakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openStatus[path] = status
	return g
}

// PushScan sends a raw scan event payload.
func (g *FakeGateway) PushScan(payload string) {
	g.publish(scanStream, payload)
}

// PushScanf formats and sends a scan event payload.
func (g *FakeGateway) PushScanf(format string, args ...any) {
	g.publish(scanStream, fmt.Sprintf(format, args...))
}

// PushDevice sends a scan event announcing a single device.
func (g *FakeGateway) PushDevice(mac string, kind gateway.AddressKind, name string, rssi int) {
	g.publish(scanStream, MustJSON(gateway.ScanEvent{
		Addresses: []gateway.Address{{Address: mac, Kind: kind}},
		Name:      name,
		RSSI:      rssi,
		EventType: 4,
	}))
}

// PushNotification sends a raw notification payload.
func (g *FakeGateway) PushNotification(payload string) {
	g.publish(notifyStream, payload)
}

// WaitScanSubscribers waits until n clients hold the scan stream open.
func (g *FakeGateway) WaitScanSubscribers(n int, timeout time.Duration) bool {
	return g.waitSubscribers(scanStream, n, timeout)
}

// WaitNotifySubscribers waits until n clients hold the notification stream open.
func (g *FakeGateway) WaitNotifySubscribers(n int, timeout time.Duration) bool {
	return g.waitSubscribers(notifyStream, n, timeout)
}

// CloseStreams ends every open event stream and forgets pushed events, as a gateway reboot would.
func (g *FakeGateway) CloseStreams() {
	for _, stream := range []string{scanStream, notifyStream} {
		g.events.RemoveStream(stream)
		g.events.CreateStream(stream)
	}

	// removed streams never report their subscribers leaving
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	clear(g.subs)
	g.notifySubsLocked()
}

// Requests returns the REST calls received so far, event stream requests excluded.
func (g *FakeGateway) Requests() []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RecordedRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// RequestsFor filters Requests by method and path prefix.
func (g *FakeGateway) RequestsFor(method, pathPrefix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range g.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			out = append(out, r)
		}
	}
	return out
}

func (g *FakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.Header.Get("Accept") == "text/event-stream" {
		switch r.URL.Path {
		case "/gap/nodes":
			g.serveStream(w, r, scanStream)
			return
		case "/gatt/nodes":
			g.serveStream(w, r, notifyStream)
			return
		}
	}

	body, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	g.requests = append(g.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   string(body),
		At:     time.Now(),
	})
	g.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/gap/nodes" && r.URL.Query().Get("connection_state") == "connected":
		g.mu.Lock()
		nodes := g.connected
		g.mu.Unlock()
		if nodes == nil {
			nodes = []gateway.ConnectedNode{}
		}
		writeResponse(w, Response{Status: http.StatusOK, Body: MustJSON(map[string]any{"nodes": nodes})})

	// /gap/nodes/<mac>/connection
	case len(parts) == 4 && parts[0] == "gap" && parts[3] == "connection":
		switch r.Method {
		case http.MethodPost:
			writeResponse(w, g.lookup(g.connect, parts[2]))
		case http.MethodDelete:
			writeResponse(w, g.lookup(g.disconnect, parts[2]))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	// /gatt/nodes/<mac>/handle/<h>/value/<hex>
	case r.Method == http.MethodGet && len(parts) == 7 && parts[0] == "gatt" && parts[3] == "handle":
		writeResponse(w, g.lookup(g.write, parts[2]))

	// /gatt/nodes/<mac>/handle/<h>/value
	case r.Method == http.MethodGet && len(parts) == 6 && parts[0] == "gatt" && parts[3] == "handle":
		g.mu.Lock()
		value, ok := g.values[normMAC(parts[2])+"/"+parts[4]]
		g.mu.Unlock()
		if !ok {
			writeResponse(w, Response{Status: http.StatusNotFound, Body: "handle not found"})
			return
		}
		h, _ := strconv.Atoi(parts[4])
		writeResponse(w, Response{Status: http.StatusOK, Body: MustJSON(map[string]any{"handle": h, "value": value})})

	default:
		http.NotFound(w, r)
	}
}

func (g *FakeGateway) lookup(responses map[string]Response, mac string) Response {
	g.mu.Lock()
	defer g.mu.Unlock()
	if resp, ok := responses[normMAC(mac)]; ok {
		return resp
	}
	return Response{Status: http.StatusOK, Body: "OK"}
}

func (g *FakeGateway) serveStream(w http.ResponseWriter, r *http.Request, stream string) {
	g.mu.Lock()
	status := g.openStatus[r.URL.Path]
	g.mu.Unlock()
	if status != 0 && status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	// the event server picks the stream from the query
	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("stream", stream)
	r.URL.RawQuery = q.Encode()

	g.events.ServeHTTP(w, r)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	if strings.HasPrefix(resp.Body, "{") {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}

func normMAC(mac string) string {
	if unescaped, err := url.PathUnescape(mac); err == nil {
		mac = unescaped
	}
	return strings.ToLower(mac)
}

func (g *FakeGateway) publish(stream, payload string) {
	g.events.Publish(stream, &sse.Event{Data: []byte(payload)})
}

func (g *FakeGateway) countSubscriber(stream string, delta int) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	g.subs[stream] += delta
	g.notifySubsLocked()
}

// notifySubsLocked wakes everyone waiting for a subscriber change. g.subsMu must be held.
func (g *FakeGateway) notifySubsLocked() {
	close(g.subsChanged)
	g.subsChanged = make(chan struct{})
}

func (g *FakeGateway) waitSubscribers(stream string, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		g.subsMu.Lock()
		if g.subs[stream] >= n {
			g.subsMu.Unlock()
			return true
		}
		changed := g.subsChanged
		g.subsMu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

// JSON decodes a recorded request body, failing the test on malformed JSON.
func (r RecordedRequest) JSON(t testing.TB) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(r.Body), &out); err != nil {
		t.Fatalf("request body %q is not JSON: %v", r.Body, err)
	}
	return out
}
