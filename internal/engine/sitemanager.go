package engine

import (
	"github.com/rs/zerolog"
)

// SiteManager is the registry of SiteCount sites and the VarCount
// variables distributed across them by the placement rule: odd xI lives
// only on site 1+(i mod siteCount); even xI lives on every site. It
// routes every read/write by site availability and owns the engine's
// single OutputSink.
type SiteManager struct {
	siteCount int
	varCount  int
	sites     map[int]*Site
	hostSites map[int][]int // varID -> ascending site ids hosting it
	sink      *OutputSink
	logger    zerolog.Logger
}

func newSiteManager(siteCount, varCount int, sink *OutputSink, logger zerolog.Logger) *SiteManager {
	sm := &SiteManager{
		siteCount: siteCount,
		varCount:  varCount,
		sites:     make(map[int]*Site, siteCount),
		hostSites: make(map[int][]int, varCount),
		sink:      sink,
		logger:    logger,
	}
	for k := 1; k <= siteCount; k++ {
		sm.sites[k] = newSite(k)
	}
	for i := 1; i <= varCount; i++ {
		hosts := sm.placementFor(i)
		sm.hostSites[i] = hosts
		for _, k := range hosts {
			sm.sites[k].hostVariable(i)
		}
	}
	return sm
}

// placementFor computes the hosting sites for variable i.
func (sm *SiteManager) placementFor(i int) []int {
	if !IsReplicatedVar(i) {
		return []int{1 + (i % sm.siteCount)}
	}
	hosts := make([]int, sm.siteCount)
	for k := 1; k <= sm.siteCount; k++ {
		hosts[k-1] = k
	}
	return hosts
}

// HostSites returns the (static) site ids hosting varID, ascending.
func (sm *SiteManager) HostSites(varID int) []int {
	return sm.hostSites[varID]
}

// AvailableHostSites returns every currently-available site hosting
// varID, regardless of taint: the set lock feasibility and write
// targeting is computed against.
func (sm *SiteManager) AvailableHostSites(varID int) []int {
	var out []int
	for _, k := range sm.hostSites[varID] {
		if sm.sites[k].available {
			out = append(out, k)
		}
	}
	return out
}

// ReadableHostSites returns every available host of varID whose copy is
// untainted, the sites an RW read can actually be served from.
func (sm *SiteManager) ReadableHostSites(varID int) []int {
	var out []int
	for _, k := range sm.hostSites[varID] {
		s := sm.sites[k]
		if s.available && !s.tainted[varID] {
			out = append(out, k)
		}
	}
	return out
}

// ReadCurrent returns the current value of varID from the first
// available, untainted copy, for RW reads.
func (sm *SiteManager) ReadCurrent(varID int) (value, siteID int, ok bool) {
	for _, k := range sm.hostSites[varID] {
		if v, ok := sm.sites[k].readCurrent(varID); ok {
			return v, k, true
		}
	}
	return 0, 0, false
}

// ValueAtOrBefore reads varID's committed history on a specific site, for
// read-only transaction snapshots.
func (sm *SiteManager) ValueAtOrBefore(siteID, varID int, ts int64) (int, bool) {
	s, ok := sm.sites[siteID]
	if !ok {
		return 0, false
	}
	return s.valueAtOrBefore(varID, ts)
}

// WriteAll commits value at ts to exactly the given sites.
func (sm *SiteManager) WriteAll(varID int, ts int64, value int, sites []int) {
	for _, k := range sites {
		if s, ok := sm.sites[k]; ok {
			s.writeCommit(varID, ts, value)
		}
	}
}

func (sm *SiteManager) IsAvailable(siteID int) bool {
	s, ok := sm.sites[siteID]
	return ok && s.available
}

func (sm *SiteManager) FailEpoch(siteID int) int {
	if s, ok := sm.sites[siteID]; ok {
		return s.failEpoch
	}
	return 0
}

func (sm *SiteManager) LastFailTS(siteID int) int64 {
	if s, ok := sm.sites[siteID]; ok {
		return s.lastFail
	}
	return 0
}

func (sm *SiteManager) Fail(ts int64, siteID int) bool {
	s, ok := sm.sites[siteID]
	if !ok {
		return false
	}
	s.fail(ts)
	sm.logger.Info().Int("site", siteID).Msg("site failed")
	return true
}

func (sm *SiteManager) Recover(siteID int) bool {
	s, ok := sm.sites[siteID]
	if !ok {
		return false
	}
	s.recover()
	sm.logger.Info().Int("site", siteID).Msg("site recovered")
	return true
}

// Emit writes a line to the engine's shared output sink.
func (sm *SiteManager) Emit(line string) {
	sm.sink.emit(line)
}

// Dump renders every site's state in ascending site id order.
func (sm *SiteManager) Dump() {
	ids := make([]int, 0, len(sm.sites))
	for k := range sm.sites {
		ids = append(ids, k)
	}
	sortInts(ids)
	for _, k := range ids {
		sm.sink.emit(sm.sites[k].dump())
	}
}

// UnavailableSiteCount is used by the engine's metrics gauge.
func (sm *SiteManager) UnavailableSiteCount() int {
	n := 0
	for _, s := range sm.sites {
		if !s.available {
			n++
		}
	}
	return n
}
