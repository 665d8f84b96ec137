package engine

import "github.com/rs/zerolog"

// LockMode distinguishes read from write holdings for release bookkeeping.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// LockOutcomeKind is the result of a try-acquire call.
type LockOutcomeKind int

const (
	Granted LockOutcomeKind = iota
	Wait
	AbortNoSite
)

// LockOutcome reports whether a lock request succeeded and, on success,
// which sites are currently participating (available hosts of the var).
type LockOutcome struct {
	Kind  LockOutcomeKind
	Sites []int
}

type lockState struct {
	readers map[int]bool
	writer  int // 0 = none
}

func newLockState() *lockState {
	return &lockState{readers: make(map[int]bool)}
}

// LockManager is the per-variable lock table plus the waits-for graph
// used for deadlock detection. Fairness (FIFO ordering of fresh requests
// behind existing waiters) is enforced one layer up by
// TransactionManager's wait queues. LockManager itself only answers
// "is this request compatible with current holders right now", and
// records a waits-for edge whenever another holder conflicts, keeping
// conflict detection and admission ordering independent. A Wait caused
// only by no available (or, for reads, no readable) copy records no edge.
type LockManager struct {
	sites    *SiteManager
	locks    map[int]*lockState      // varID -> state
	held     map[int]map[int]LockMode // txID -> varID -> mode held
	waitsFor map[int]map[int]bool     // txID -> set of txIDs it waits for
	logger   zerolog.Logger
}

func newLockManager(sites *SiteManager, logger zerolog.Logger) *LockManager {
	return &LockManager{
		sites:    sites,
		locks:    make(map[int]*lockState),
		held:     make(map[int]map[int]LockMode),
		waitsFor: make(map[int]map[int]bool),
		logger:   logger,
	}
}

func (lm *LockManager) stateFor(varID int) *lockState {
	st, ok := lm.locks[varID]
	if !ok {
		st = newLockState()
		lm.locks[varID] = st
	}
	return st
}

// Holders returns every transaction currently holding a lock (reader or
// writer) on varID, used by TransactionManager to wire waits-for edges
// for requests that park ahead of the lock manager (FIFO fairness).
func (lm *LockManager) Holders(varID int) []int {
	st, ok := lm.locks[varID]
	if !ok {
		return nil
	}
	var out []int
	for id := range st.readers {
		out = append(out, id)
	}
	if st.writer != 0 {
		out = append(out, st.writer)
	}
	return out
}

// WriterOf returns the transaction currently holding the write lock on
// varID, or 0 when none does. TransactionManager uses it to tell a
// lock-conflict wait apart from a data-availability wait.
func (lm *LockManager) WriterOf(varID int) int {
	if st, ok := lm.locks[varID]; ok {
		return st.writer
	}
	return 0
}

func (lm *LockManager) addWaitEdge(from, to int) {
	if from == to {
		return
	}
	if lm.waitsFor[from] == nil {
		lm.waitsFor[from] = make(map[int]bool)
	}
	lm.waitsFor[from][to] = true
}

// clearWaitEdges drops every outgoing edge from txID. A transaction only
// ever has one instruction in flight at a time, so a fresh grant always
// resolves whatever it was previously blocked on.
func (lm *LockManager) clearWaitEdges(txID int) {
	delete(lm.waitsFor, txID)
}

func (lm *LockManager) grant(txID, varID int, mode LockMode) {
	if lm.held[txID] == nil {
		lm.held[txID] = make(map[int]LockMode)
	}
	lm.held[txID][varID] = mode
}

// TryRead attempts to grant a read lock on varID to txID.
func (lm *LockManager) TryRead(txID, varID int) LockOutcome {
	avail := lm.sites.AvailableHostSites(varID)
	if len(avail) == 0 {
		if !IsReplicatedVar(varID) {
			return LockOutcome{Kind: AbortNoSite}
		}
		return LockOutcome{Kind: Wait}
	}

	st := lm.stateFor(varID)
	if st.writer != 0 && st.writer != txID {
		lm.addWaitEdge(txID, st.writer)
		return LockOutcome{Kind: Wait}
	}

	// No lock conflict, but every copy may still be unservable: a
	// recovered site's replicated copy stays tainted until rewritten.
	// The read waits WITHOUT taking the lock; holding it would block
	// the very write that clears the taint.
	if len(lm.sites.ReadableHostSites(varID)) == 0 {
		return LockOutcome{Kind: Wait}
	}

	st.readers[txID] = true
	lm.grant(txID, varID, LockRead)
	lm.clearWaitEdges(txID)
	return LockOutcome{Kind: Granted, Sites: avail}
}

// TryWrite attempts to grant a write lock on varID to txID, upgrading a
// sole read holder in place.
func (lm *LockManager) TryWrite(txID, varID int) LockOutcome {
	avail := lm.sites.AvailableHostSites(varID)
	if len(avail) == 0 {
		if !IsReplicatedVar(varID) {
			return LockOutcome{Kind: AbortNoSite}
		}
		return LockOutcome{Kind: Wait}
	}

	st := lm.stateFor(varID)
	if st.writer == txID {
		return LockOutcome{Kind: Granted, Sites: avail}
	}
	if st.writer != 0 {
		lm.addWaitEdge(txID, st.writer)
		return LockOutcome{Kind: Wait}
	}

	for id := range st.readers {
		if id != txID {
			lm.addWaitEdge(txID, id)
		}
	}
	if len(lm.waitsFor[txID]) > 0 {
		return LockOutcome{Kind: Wait}
	}

	st.writer = txID
	delete(st.readers, txID) // writer subsumes the reader entry
	lm.grant(txID, varID, LockWrite)
	lm.clearWaitEdges(txID)
	return LockOutcome{Kind: Granted, Sites: avail}
}

// ReleaseAll drops every lock txID holds, clears its waits-for edges (in
// both directions), and returns the set of variables it held; the
// caller re-drains wait queues on those variables.
func (lm *LockManager) ReleaseAll(txID int) []int {
	held := lm.held[txID]
	affected := make([]int, 0, len(held))
	for varID, mode := range held {
		st := lm.locks[varID]
		if st == nil {
			continue
		}
		if mode == LockWrite && st.writer == txID {
			st.writer = 0
		}
		delete(st.readers, txID)
		affected = append(affected, varID)
	}
	delete(lm.held, txID)
	delete(lm.waitsFor, txID)
	for _, edges := range lm.waitsFor {
		delete(edges, txID)
	}
	sortInts(affected)
	return affected
}
