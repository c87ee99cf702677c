package gateway_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StreamSuite struct {
	testutils.MockGatewaySuite
}

func TestStreamSuite(t *testing.T) {
	suite.Run(t, new(StreamSuite))
}

func receive[T any](s *StreamSuite, sub *gateway.Subscription[T]) T {
	s.T().Helper()
	select {
	case ev, ok := <-sub.C():
		s.Require().True(ok, "stream ended early: %v", sub.Err())
		return ev
	case <-time.After(s.TestTimeout):
		s.FailNow("timed out waiting for event")
	}
	var zero T
	return zero
}

func (s *StreamSuite) TestScanEventsDelivered() {
	sub, err := s.Client.SubscribeScan(s.Context(), gateway.ScanFilter{RSSI: -75, Name: "Cassia*", Active: true})
	s.Require().NoError(err)
	defer sub.Close()

	s.Gateway.PushScan(`{"bdaddrs":[{"bdaddr":"ED:47:B0:D3:A9:C8","bdaddrType":"random"}],"name":"Sleepace Z2","rssi":-37,"evt_type":4}`)

	ev := receive(s, sub)
	addr, ok := ev.Primary()
	s.Require().True(ok)
	s.Equal("ED:47:B0:D3:A9:C8", addr.Address)
	s.Equal(gateway.AddressRandom, addr.Kind)
	s.Equal("Sleepace Z2", ev.Name)
	s.Equal(-37, ev.RSSI)
}

func (s *StreamSuite) TestMalformedScanEventSkipped() {
	sub, err := s.Client.SubscribeScan(s.Context(), gateway.ScanFilter{})
	s.Require().NoError(err)
	defer sub.Close()

	s.Gateway.PushScan(`{not json`)
	s.Gateway.PushDevice("AA:BB:CC:DD:EE:01", gateway.AddressPublic, "next", -50)

	ev := receive(s, sub)
	s.Equal("next", ev.Name)
	s.True(s.Logs.Contains("Dropping malformed event"))
}

func (s *StreamSuite) TestNotificationsKeepRawPayload() {
	sub, err := s.Client.SubscribeNotifications(s.Context())
	s.Require().NoError(err)
	defer sub.Close()

	s.Gateway.PushNotification(`{"id":"AA:BB:CC:DD:EE:01","handle":18,"value":"0a0b"}`)
	s.Gateway.PushNotification(`keep-alive text`)

	n := receive(s, sub)
	s.Equal("AA:BB:CC:DD:EE:01", n.DeviceID)
	s.Equal(18, n.Handle)
	s.Equal("0a0b", n.Value)
	s.Equal(`{"id":"AA:BB:CC:DD:EE:01","handle":18,"value":"0a0b"}`, n.Raw)

	n = receive(s, sub)
	s.Equal("keep-alive text", n.Raw)
	s.Empty(n.DeviceID)
}

func (s *StreamSuite) TestGatewayClosesStream() {
	sub, err := s.Client.SubscribeNotifications(s.Context())
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().True(s.Gateway.WaitNotifySubscribers(1, s.TestTimeout))
	s.Gateway.CloseStreams()

	select {
	case <-sub.Done():
	case <-time.After(s.TestTimeout):
		s.FailNow("subscription did not end")
	}
	s.ErrorIs(sub.Err(), gateway.ErrStreamClosed)

	_, open := <-sub.C()
	s.False(open)
}

func (s *StreamSuite) TestStreamRejected() {
	s.Gateway.WithStreamStatus("/gap/nodes", http.StatusServiceUnavailable)

	sub, err := s.Client.SubscribeScan(s.Context(), gateway.ScanFilter{})
	s.Require().NoError(err)
	defer sub.Close()

	<-sub.Done()
	s.True(gateway.IsStatus(sub.Err(), http.StatusServiceUnavailable), "got %v", sub.Err())
	s.False(s.Gateway.WaitScanSubscribers(1, 100*time.Millisecond), "a failed stream MUST NOT be reopened")
}

func (s *StreamSuite) TestCloseCancels() {
	sub, err := s.Client.SubscribeScan(s.Context(), gateway.ScanFilter{})
	s.Require().NoError(err)
	s.Require().True(s.Gateway.WaitScanSubscribers(1, s.TestTimeout))

	sub.Close()

	s.ErrorIs(sub.Err(), context.Canceled)
	_, open := <-sub.C()
	s.False(open)
}

func TestSubscribe_ParentContextCancelled(t *testing.T) {
	gw := testutils.NewFakeGateway(t)
	c := newClient(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.SubscribeScan(ctx, gateway.ScanFilter{})
	require.NoError(t, err)
	require.True(t, gw.WaitScanSubscribers(1, 5*time.Second))

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription ignored cancellation")
	}
	assert.ErrorIs(t, sub.Err(), context.Canceled)
}
