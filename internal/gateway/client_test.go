package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, gw *testutils.FakeGateway) *gateway.Client {
	t.Helper()
	c, err := gateway.NewClient(gw.URL(), testutils.NewTestHelper(t).Logger, gateway.WithRequestTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func TestNewClient_Host(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		want    string
		wantErr string
	}{
		{name: "default", host: "", want: gateway.DefaultHost},
		{name: "bare address", host: "192.168.0.38", want: "http://192.168.0.38"},
		{name: "with port", host: "10.0.0.1:8080", want: "http://10.0.0.1:8080"},
		{name: "trailing slash", host: "http://10.0.0.1/", want: "http://10.0.0.1"},
		{name: "https", host: "https://gw.local", want: "https://gw.local"},
		{name: "bad scheme", host: "ftp://gw.local", wantErr: "unsupported scheme"},
		{name: "missing host", host: "http://", wantErr: "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := gateway.NewClient(tt.host, nil)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}
}

func TestClient_Connect(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	body, err := c.Connect(context.Background(), "ED:47:B0:D3:A9:C8", gateway.AddressRandom, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "OK", body)

	reqs := gw.RequestsFor(http.MethodPost, "/gap/nodes/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "/gap/nodes/ED:47:B0:D3:A9:C8/connection", reqs[0].Path)
	testutils.NewJSONAsserter(t).
		WithOptions(testutils.WithIgnoreExtraKeys(false)).
		Assert(reqs[0].Body, `{"timeout":5000,"type":"random"}`)
}

func TestClient_ConnectDefaultsToPublic(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	_, err := c.Connect(context.Background(), "AA:BB:CC:DD:EE:01", "", time.Second)
	require.NoError(t, err)

	reqs := gw.RequestsFor(http.MethodPost, "/gap/nodes/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "public", reqs[0].JSON(t)["type"])
}

func TestClient_ConnectRejected(t *testing.T) {
	gw := testutils.NewFakeGateway(t).
		WithConnectResponse("AA:BB:CC:DD:EE:01", http.StatusInternalServerError, "chip is busy\n")
	c := newClient(t, gw)

	_, err := c.Connect(context.Background(), "AA:BB:CC:DD:EE:01", gateway.AddressPublic, time.Second)
	require.Error(t, err)

	var serr *gateway.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.StatusCode)
	assert.Equal(t, "chip is busy", serr.Body)
	assert.Equal(t, "connect", serr.Op)
	assert.ErrorIs(t, err, gateway.ErrChipBusy)
	assert.True(t, gateway.IsStatus(err, http.StatusInternalServerError))
}

func TestClient_SuccessStatuses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantBody string
		wantErr  bool
	}{
		{name: "ok", status: http.StatusOK, body: "OK", wantBody: "OK"},
		{name: "accepted", status: http.StatusAccepted, body: "queued", wantBody: "queued"},
		{name: "no content", status: http.StatusNoContent, wantBody: ""},
		{name: "redirect without location", status: http.StatusFound, body: "moved", wantErr: true},
		{name: "not found", status: http.StatusNotFound, body: "no such device", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutils.NewFakeGateway(t).WithConnectResponse("AA:BB:CC:DD:EE:01", tt.status, tt.body)
			c := newClient(t, gw)

			body, err := c.Connect(context.Background(), "AA:BB:CC:DD:EE:01", gateway.AddressPublic, time.Second)
			if tt.wantErr {
				assert.True(t, gateway.IsStatus(err, tt.status), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestClient_WriteHandle(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	body, err := c.WriteHandle(context.Background(), "AA:BB:CC:DD:EE:01", 17, "0200")
	require.NoError(t, err)
	assert.Equal(t, "OK", body)

	reqs := gw.RequestsFor(http.MethodGet, "/gatt/nodes/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "/gatt/nodes/AA:BB:CC:DD:EE:01/handle/17/value/0200", reqs[0].Path)
}

func TestClient_WriteHandleValidation(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	_, err := c.WriteHandle(context.Background(), "AA:BB:CC:DD:EE:01", 0, "0200")
	assert.ErrorContains(t, err, "invalid handle")

	_, err = c.WriteHandle(context.Background(), "AA:BB:CC:DD:EE:01", 17, "xyz")
	assert.ErrorContains(t, err, "invalid hex value")

	assert.Empty(t, gw.Requests(), "invalid writes MUST NOT reach the gateway")
}

func TestClient_ReadHandle(t *testing.T) {
	gw := testutils.NewFakeGateway(t).WithHandleValue("AA:BB:CC:DD:EE:01", 3, "4869")
	c := newClient(t, gw)

	value, err := c.ReadHandle(context.Background(), "AA:BB:CC:DD:EE:01", 3)
	require.NoError(t, err)
	assert.Equal(t, "4869", value)

	_, err = c.ReadHandle(context.Background(), "AA:BB:CC:DD:EE:01", 4)
	assert.ErrorIs(t, err, gateway.ErrDeviceNotFound)
	assert.True(t, gateway.IsStatus(err, http.StatusNotFound))
}

func TestClient_Disconnect(t *testing.T) {
	gw := testutils.NewFakeGateway(t).
		WithDisconnectResponse("AA:BB:CC:DD:EE:02", http.StatusBadRequest, "device not connected")
	c := newClient(t, gw)

	_, err := c.Disconnect(context.Background(), "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)

	_, err = c.Disconnect(context.Background(), "AA:BB:CC:DD:EE:02")
	assert.True(t, gateway.IsStatus(err, http.StatusBadRequest))

	assert.Len(t, gw.RequestsFor(http.MethodDelete, "/gap/nodes/"), 2)
}

func TestClient_ConnectedDevices(t *testing.T) {
	gw := testutils.NewFakeGateway(t).WithConnected(
		gateway.ConnectedNode{
			Address:         gateway.Address{Address: "AA:BB:CC:DD:EE:01", Kind: gateway.AddressPublic},
			Name:            "Sensor 1",
			ChipID:          0,
			ConnectionState: "connected",
		},
	)
	c := newClient(t, gw)

	nodes, err := c.ConnectedDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", nodes[0].Address.Address)
	assert.Equal(t, "Sensor 1", nodes[0].Name)

	reqs := gw.RequestsFor(http.MethodGet, "/gap/nodes")
	require.Len(t, reqs, 1)
	assert.Equal(t, "connected", reqs[0].Query.Get("connection_state"))
}

func TestClient_ContextCancelled(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Connect(ctx, "AA:BB:CC:DD:EE:01", gateway.AddressPublic, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

type fakeDoer struct {
	err error
}

func (f fakeDoer) Do(*http.Request) (*http.Response, error) {
	return nil, f.err
}

func TestClient_TransportError(t *testing.T) {
	boom := errors.New("network unreachable")
	c, err := gateway.NewClient("10.0.0.1", nil, gateway.WithHTTPClient(fakeDoer{err: boom}))
	require.NoError(t, err)

	_, err = c.WriteHandle(context.Background(), "AA:BB:CC:DD:EE:01", 17, "0200")
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "write:")
}
