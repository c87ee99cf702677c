package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blegw/internal/gateway"
	"github.com/stretchr/testify/suite"
)

// MockGatewaySuite provides a fresh FakeGateway and a client bound to it for each test.
//
//	type DrainSuite struct {
//	    testutils.MockGatewaySuite
//	}
//
//	func (s *DrainSuite) TestRejectedConnect() {
//	    s.Gateway.WithConnectResponse("AA:BB:CC:DD:EE:01", 500, "chip is busy")
//	    ...
//	}
//
//	func TestDrainSuite(t *testing.T) {
//	    suite.Run(t, new(DrainSuite))
//	}
type MockGatewaySuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger
	Logs   *LogBuffer

	Gateway     *FakeGateway
	Client      *gateway.Client
	TestTimeout time.Duration
}

// SetupTest starts the fake gateway. Called before each test method.
func (s *MockGatewaySuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Logs = s.Helper.Logs
	s.TestTimeout = 5 * time.Second

	s.Gateway = NewFakeGateway(s.T())

	client, err := gateway.NewClient(s.Gateway.URL(), s.Logger, gateway.WithRequestTimeout(s.TestTimeout))
	s.Require().NoError(err)
	s.Client = client
}

// Context returns a context cancelled when the test ends or TestTimeout elapses.
func (s *MockGatewaySuite) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}

// WaitFor fails the test unless cond holds within TestTimeout.
func (s *MockGatewaySuite) WaitFor(cond func() bool, msg string) {
	s.T().Helper()
	s.Require().True(Eventually(s.TestTimeout, cond), msg)
}
