package engine

import "fmt"

// Site owns a subset of variables and carries availability state plus a
// fail epoch used to taint replicated copies across a recovery. A failed
// site never loses data: fail() and recover() never touch values, only
// availability and taint.
type Site struct {
	id        int
	available bool
	failEpoch int
	lastFail  int64 // timestamp of the most recent fail(), 0 if never
	tainted   map[int]bool
	vars      map[int]*Variable
}

func newSite(id int) *Site {
	return &Site{
		id:        id,
		available: true,
		tainted:   make(map[int]bool),
		vars:      make(map[int]*Variable),
	}
}

func (s *Site) hostVariable(id int) {
	if _, ok := s.vars[id]; !ok {
		s.vars[id] = newVariable(id)
	}
}

// fail marks the site down and taints every replicated variable it holds.
// Non-replicated variables are never tainted: a taint only matters for
// available-copies reads across replicas.
func (s *Site) fail(ts int64) {
	s.available = false
	s.failEpoch++
	s.lastFail = ts
	for id, v := range s.vars {
		if v.isReplicated {
			s.tainted[id] = true
		}
	}
}

// recover marks the site available again. The taint set is preserved:
// a replicated variable stays unreadable here until rewritten.
func (s *Site) recover() {
	s.available = true
}

// writeCommit applies a committed value to this site's copy and clears
// the taint on that one variable. Taint on every other variable
// persists, even when the same commit rewrites those variables on other
// sites.
func (s *Site) writeCommit(varID int, ts int64, value int) {
	v, ok := s.vars[varID]
	if !ok {
		return
	}
	v.applyCommit(ts, value)
	delete(s.tainted, varID)
}

// readCurrent returns the site's current value for varID, iff the site
// is available and the variable isn't tainted.
func (s *Site) readCurrent(varID int) (int, bool) {
	if !s.available || s.tainted[varID] {
		return 0, false
	}
	v, ok := s.vars[varID]
	if !ok {
		return 0, false
	}
	return v.current, true
}

func (s *Site) valueAtOrBefore(varID int, ts int64) (int, bool) {
	v, ok := s.vars[varID]
	if !ok {
		return 0, false
	}
	return v.valueAtOrBefore(ts)
}

// dump renders "site k - x1: v1 x2: v2 …" in ascending variable order.
func (s *Site) dump() string {
	ids := make([]int, 0, len(s.vars))
	for id := range s.vars {
		ids = append(ids, id)
	}
	sortInts(ids)

	line := fmt.Sprintf("site %d -", s.id)
	for _, id := range ids {
		line += fmt.Sprintf(" x%d: %d", id, s.vars[id].current)
	}
	return line
}
