package engine

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDeadlockNoCycle(t *testing.T) {
	lm, _ := newTestLockManager(t)

	require.Equal(t, Granted, lm.TryWrite(1, 2).Kind)
	require.Equal(t, Wait, lm.TryWrite(2, 2).Kind)

	_, found := lm.DetectDeadlock(func(int) int64 { return 0 })
	assert.False(t, found)
}

func TestDetectDeadlockPicksYoungest(t *testing.T) {
	sites := newSiteManager(SiteCount, VarCount, newOutputSink(&bytes.Buffer{}), zerolog.Nop())
	lm := newLockManager(sites, zerolog.Nop())

	// T1 holds x2, waits on x4 held by T2; T2 waits on x2 held by T1: a cycle.
	require.Equal(t, Granted, lm.TryWrite(1, 2).Kind)
	require.Equal(t, Granted, lm.TryWrite(2, 4).Kind)
	require.Equal(t, Wait, lm.TryWrite(2, 2).Kind)
	require.Equal(t, Wait, lm.TryWrite(1, 4).Kind)

	start := map[int]int64{1: 10, 2: 20}
	victim, found := lm.DetectDeadlock(func(id int) int64 { return start[id] })
	require.True(t, found)
	assert.Equal(t, 2, victim, "T2 is younger (larger start_ts) and is aborted")
}

func TestDetectDeadlockThreeWayCycle(t *testing.T) {
	sites := newSiteManager(SiteCount, VarCount, newOutputSink(&bytes.Buffer{}), zerolog.Nop())
	lm := newLockManager(sites, zerolog.Nop())

	require.Equal(t, Granted, lm.TryWrite(1, 2).Kind)
	require.Equal(t, Granted, lm.TryWrite(2, 4).Kind)
	require.Equal(t, Granted, lm.TryWrite(3, 6).Kind)
	require.Equal(t, Wait, lm.TryWrite(1, 4).Kind) // 1 -> 2
	require.Equal(t, Wait, lm.TryWrite(2, 6).Kind) // 2 -> 3
	require.Equal(t, Wait, lm.TryWrite(3, 2).Kind) // 3 -> 1

	start := map[int]int64{1: 5, 2: 15, 3: 25}
	victim, found := lm.DetectDeadlock(func(id int) int64 { return start[id] })
	require.True(t, found)
	assert.Equal(t, 3, victim)
}
