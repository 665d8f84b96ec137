package engine

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSiteManager(t *testing.T) *SiteManager {
	t.Helper()
	return newSiteManager(SiteCount, VarCount, newOutputSink(&bytes.Buffer{}), zerolog.Nop())
}

func TestPlacementInvariant(t *testing.T) {
	sm := newTestSiteManager(t)

	// Odd variables live on exactly one site: 1 + (i mod SiteCount).
	for i := 1; i <= VarCount; i += 2 {
		hosts := sm.HostSites(i)
		require.Len(t, hosts, 1, "x%d should have exactly one host", i)
		assert.Equal(t, 1+(i%SiteCount), hosts[0])
	}

	// Even variables live on every site.
	for i := 2; i <= VarCount; i += 2 {
		hosts := sm.HostSites(i)
		assert.Len(t, hosts, SiteCount, "x%d should be replicated to every site", i)
	}
}

func TestReadCurrentSkipsTaintedCopies(t *testing.T) {
	sm := newTestSiteManager(t)

	sm.Fail(1, 1)
	sm.Recover(1)
	val, siteID, ok := sm.ReadCurrent(2)
	require.True(t, ok)
	assert.Equal(t, 20, val)
	assert.NotEqual(t, 1, siteID, "site 1's copy is tainted and should be skipped")
}

func TestReadCurrentAllTaintedFails(t *testing.T) {
	sm := newTestSiteManager(t)
	for k := 1; k <= SiteCount; k++ {
		sm.Fail(1, k)
		sm.Recover(k)
	}
	_, _, ok := sm.ReadCurrent(2)
	assert.False(t, ok, "every copy is tainted until one is rewritten")
}

func TestWriteAllClearsTaintOnTargetsOnly(t *testing.T) {
	sm := newTestSiteManager(t)
	sm.Fail(1, 1)
	sm.Fail(1, 2)
	sm.Recover(1)
	sm.Recover(2)

	sm.WriteAll(2, 5, 500, []int{1})

	val, siteID, ok := sm.ReadCurrent(2)
	require.True(t, ok)
	assert.Equal(t, 1, siteID)
	assert.Equal(t, 500, val)

	// Site 2's copy is still tainted: untouched by WriteAll.
	_, ok = sm.sites[2].readCurrent(2)
	assert.False(t, ok)
}

func TestAvailableHostSitesExcludesFailedSites(t *testing.T) {
	sm := newTestSiteManager(t)
	sm.Fail(1, 1)
	avail := sm.AvailableHostSites(1) // x1 hosted only on site 2 (1 + 1%10)
	assert.Equal(t, []int{2}, avail)

	sm.Fail(1, 2)
	assert.Empty(t, sm.AvailableHostSites(1))
}
