package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LeaseTestSuite struct {
	suite.Suite
	ctx context.Context
	mr  *miniredis.Miniredis
}

func TestLease(t *testing.T) {
	suite.Run(t, new(LeaseTestSuite))
}

func (s *LeaseTestSuite) SetupTest() {
	s.ctx = context.Background()
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
}

func (s *LeaseTestSuite) TearDownTest() {
	s.mr.Close()
}

func (s *LeaseTestSuite) TestNilConfigDisablesLease() {
	lease, err := NewLease(nil)
	s.Require().NoError(err)
	s.Require().Nil(lease)
	s.True(lease.Acquire(s.ctx, "binding-1", time.Minute))
}

func (s *LeaseTestSuite) TestAcquireIsExclusiveUntilTTLExpires() {
	lease, err := NewLease(&LeaseConfig{Addr: s.mr.Addr()})
	require.NoError(s.T(), err)
	defer lease.Close()

	first := lease.Acquire(s.ctx, "binding-1", time.Minute)
	second := lease.Acquire(s.ctx, "binding-1", time.Minute)

	s.True(first)
	s.False(second)

	s.mr.FastForward(2 * time.Minute)
	s.True(lease.Acquire(s.ctx, "binding-1", time.Minute))
}

func (s *LeaseTestSuite) TestDifferentBindingsDoNotContend() {
	lease, err := NewLease(&LeaseConfig{Addr: s.mr.Addr()})
	require.NoError(s.T(), err)
	defer lease.Close()

	s.True(lease.Acquire(s.ctx, "binding-1", time.Minute))
	s.True(lease.Acquire(s.ctx, "binding-2", time.Minute))
}
