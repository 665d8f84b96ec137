package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteFailTaintsReplicatedOnly(t *testing.T) {
	s := newSite(1)
	s.hostVariable(2)  // replicated
	s.hostVariable(3)  // single-copy, but hosted here for this test

	s.fail(1)

	assert.False(t, s.available)
	assert.Equal(t, 1, s.failEpoch)
	assert.True(t, s.tainted[2])
	assert.False(t, s.tainted[3], "non-replicated variables are never tainted")
}

func TestSiteRecoverKeepsTaintUntilRewrite(t *testing.T) {
	s := newSite(1)
	s.hostVariable(2)
	s.fail(1)
	s.recover()

	assert.True(t, s.available)
	_, ok := s.readCurrent(2)
	assert.False(t, ok, "tainted replicated var unreadable until rewritten")

	s.writeCommit(2, 5, 99)
	val, ok := s.readCurrent(2)
	assert.True(t, ok)
	assert.Equal(t, 99, val)
}

func TestSiteFailEpochStrictlyIncreases(t *testing.T) {
	s := newSite(1)
	s.fail(1)
	s.recover()
	s.fail(2)
	assert.Equal(t, 2, s.failEpoch)
}

func TestSiteReadCurrentUnavailable(t *testing.T) {
	s := newSite(1)
	s.hostVariable(4)
	s.fail(1)
	_, ok := s.readCurrent(4)
	assert.False(t, ok)
}

func TestSiteDumpFormat(t *testing.T) {
	s := newSite(3)
	s.hostVariable(2)
	s.hostVariable(4)
	assert.Equal(t, "site 3 - x2: 20 x4: 40", s.dump())
}
