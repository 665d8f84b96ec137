package engine

import (
	"fmt"

	"github.com/rs/zerolog"
)

// parkedInstr is one instruction waiting in a per-variable FIFO queue.
type parkedInstr struct {
	txID  int
	instr Instruction
}

// TransactionManager admits instructions in arrival order, dispatches
// them against the lock manager and site manager, parks operations that
// can't yet proceed, and re-drains those queues to a fixpoint after every
// state change.
type TransactionManager struct {
	sites   *SiteManager
	locks   *LockManager
	metrics *Metrics
	logger  zerolog.Logger

	txs        map[int]*Transaction
	waitQueues map[int][]parkedInstr // varID -> FIFO of lock waiters
	// dataWaiters holds reads blocked on data availability rather than on
	// a lock: RW reads with every copy down or tainted, and RO reads with
	// no eligible snapshot site (see eligibleROSite). They hold no locks, impose
	// no FIFO ordering on lock admission, and retry on every drain pass.
	dataWaiters map[int][]parkedInstr
	currTS      int64
}

func newTransactionManager(sites *SiteManager, locks *LockManager, metrics *Metrics, logger zerolog.Logger) *TransactionManager {
	return &TransactionManager{
		sites:       sites,
		locks:       locks,
		metrics:     metrics,
		logger:      logger,
		txs:         make(map[int]*Transaction),
		waitQueues:  make(map[int][]parkedInstr),
		dataWaiters: make(map[int][]parkedInstr),
	}
}

// Admit is the admission/execution loop entry point for one
// (timestamp, instruction) tuple.
func (tm *TransactionManager) Admit(ts int64, instr Instruction) {
	tm.currTS = ts
	tm.resolveDeadlocks()
	tm.dispatch(ts, instr)
	tm.drainAll()
}

// Quiesce re-runs deadlock resolution and drains every wait queue to a
// fixpoint without admitting a new instruction, used once all input has
// been fed, to let any now-resolvable waits settle before the final dump.
func (tm *TransactionManager) Quiesce() {
	tm.resolveDeadlocks()
	tm.drainAll()
}

// HasOutstandingWork reports whether any transaction is still active or
// any instruction remains parked.
func (tm *TransactionManager) HasOutstandingWork() bool {
	for _, tx := range tm.txs {
		if tx.state == Active {
			return true
		}
	}
	for _, q := range tm.waitQueues {
		if len(q) > 0 {
			return true
		}
	}
	for _, q := range tm.dataWaiters {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// Dump emits every site's state via the shared output sink.
func (tm *TransactionManager) Dump() {
	tm.sites.Dump()
}

func (tm *TransactionManager) dispatch(ts int64, instr Instruction) {
	switch instr.Kind {
	case InstrBegin:
		tm.txs[instr.TxID] = newTransaction(instr.TxID, ts, RW)
	case InstrBeginRO:
		tm.txs[instr.TxID] = newTransaction(instr.TxID, ts, RO)
	case InstrRead, InstrWrite, InstrEnd:
		tm.admitTxOp(ts, instr)
	case InstrFail:
		tm.execFail(ts, instr.SiteID)
	case InstrRecover:
		tm.execRecover(instr.SiteID)
	case InstrDump:
		tm.Dump()
	}
}

// --- reads & writes -------------------------------------------------

// admitTxOp enforces per-transaction program order: a transaction issues
// read/write/end in the sequence its instructions appear, so an
// instruction for a transaction that already has one outstanding simply
// joins that transaction's own private queue instead of being attempted
// out of turn.
func (tm *TransactionManager) admitTxOp(ts int64, instr Instruction) {
	tx, ok := tm.txs[instr.TxID]
	if !ok || tx.state != Active {
		return
	}
	if len(tx.pending) > 0 {
		tx.pending = append(tx.pending, instr)
		return
	}
	tm.tryExec(ts, tx, instr)
}

// tryExec attempts instr immediately. end never blocks on its own: it
// only ever waits behind an earlier instruction from the same
// transaction, which admitTxOp already routes around it.
func (tm *TransactionManager) tryExec(ts int64, tx *Transaction, instr Instruction) {
	if instr.Kind == InstrEnd {
		tm.execEnd(ts, tx.id)
		return
	}
	if !tm.tryOne(tx, instr) {
		tx.pending = append(tx.pending, instr)
	}
}

// opResult classifies one attempt at a read or write: done, blocked on a
// lock another transaction holds, or blocked on data availability (every
// copy down or tainted, no eligible snapshot site). The distinction
// decides which queue the instruction parks in.
type opResult int

const (
	opDone opResult = iota
	opWaitLock
	opWaitData
)

// tryOne attempts one read or write, applying fairness (queueBlocks) and
// parking it on failure, both in the transaction's own pending queue
// (by the caller) and in the variable's lock or data queue (here).
// Used both for fresh admission and for instructions advancing out of a
// transaction's own pending queue once an earlier one unblocks.
func (tm *TransactionManager) tryOne(tx *Transaction, instr Instruction) (completed bool) {
	switch instr.Kind {
	case InstrRead:
		if tx.kind == RO {
			if tm.tryReadOnly(tx, instr.VarID) {
				return true
			}
			tm.parkData(instr.VarID, instr)
			return false
		}
		if tm.queueBlocks(instr.VarID) {
			tm.parkBehindHolders(tx, instr)
			return false
		}
		switch tm.coreTryRead(tx, instr.VarID) {
		case opDone:
			return true
		case opWaitData:
			tm.parkData(instr.VarID, instr)
		default:
			tm.park(instr.VarID, instr)
		}
		return false
	case InstrWrite:
		if tm.queueBlocks(instr.VarID) {
			tm.parkBehindHolders(tx, instr)
			return false
		}
		if tm.coreTryWrite(tx, instr.VarID, instr.Value) {
			return true
		}
		tm.park(instr.VarID, instr)
		return false
	default:
		return true
	}
}

func (tm *TransactionManager) queueBlocks(varID int) bool {
	return len(tm.waitQueues[varID]) > 0
}

func (tm *TransactionManager) parkBehindHolders(tx *Transaction, instr Instruction) {
	for _, holder := range tm.locks.Holders(instr.VarID) {
		tm.locks.addWaitEdge(tx.id, holder)
	}
	tm.park(instr.VarID, instr)
}

func (tm *TransactionManager) park(varID int, instr Instruction) {
	tm.waitQueues[varID] = append(tm.waitQueues[varID], parkedInstr{txID: instr.TxID, instr: instr})
}

func (tm *TransactionManager) parkData(varID int, instr Instruction) {
	tm.dataWaiters[varID] = append(tm.dataWaiters[varID], parkedInstr{txID: instr.TxID, instr: instr})
}

// coreTryRead performs the actual lock-manager interaction for a read,
// without any fairness pre-check, used both for fresh admission (once
// fairness has cleared) and for retrying a parked request.
func (tm *TransactionManager) coreTryRead(tx *Transaction, varID int) opResult {
	// A transaction holding the write lock reads its own buffered value.
	if val, ok := tx.writes[varID]; ok {
		tm.sites.Emit(fmt.Sprintf("x%d: %d", varID, val))
		return opDone
	}

	outcome := tm.locks.TryRead(tx.id, varID)
	switch outcome.Kind {
	case AbortNoSite:
		tm.abortTx(tx, "no available site hosts the variable")
		return opDone
	case Wait:
		if w := tm.locks.WriterOf(varID); w != 0 && w != tx.id {
			return opWaitLock
		}
		return opWaitData
	}

	val, siteID, ok := tm.sites.ReadCurrent(varID)
	if !ok {
		return opWaitData
	}
	tx.recordSiteAccess(siteID, tm.sites.FailEpoch(siteID))
	tm.sites.Emit(fmt.Sprintf("x%d: %d", varID, val))
	return opDone
}

func (tm *TransactionManager) coreTryWrite(tx *Transaction, varID, value int) (completed bool) {
	outcome := tm.locks.TryWrite(tx.id, varID)
	switch outcome.Kind {
	case AbortNoSite:
		tm.abortTx(tx, "no available site hosts the variable")
		return true
	case Wait:
		return false
	case Granted:
		tx.writes[varID] = value
		for _, siteID := range outcome.Sites {
			tx.recordSiteAccess(siteID, tm.sites.FailEpoch(siteID))
		}
		return true
	}
	return false
}

// tryReadOnly serves an RO read from the transaction's snapshot,
// populating it lazily on first touch.
func (tm *TransactionManager) tryReadOnly(tx *Transaction, varID int) (completed bool) {
	if val, ok := tx.snapshot[varID]; ok {
		tm.sites.Emit(fmt.Sprintf("x%d: %d", varID, val))
		return true
	}

	siteID, ok := tm.eligibleROSite(varID, tx.startTS)
	if !ok {
		tx.snapshotPending[varID] = true
		return false
	}

	val, ok := tm.sites.ValueAtOrBefore(siteID, varID, tx.startTS)
	if !ok {
		tx.snapshotPending[varID] = true
		return false
	}
	tx.snapshot[varID] = val
	delete(tx.snapshotPending, varID)
	tm.sites.Emit(fmt.Sprintf("x%d: %d", varID, val))
	return true
}

// eligibleROSite finds a host of varID that is available now and whose
// most recent failure, if any, happened before startTS, the only copies a
// snapshot read may be sourced from. A host that was already down at
// startTS and has recovered since then without failing again qualifies.
func (tm *TransactionManager) eligibleROSite(varID int, startTS int64) (int, bool) {
	for _, siteID := range tm.sites.HostSites(varID) {
		if tm.sites.IsAvailable(siteID) && tm.sites.LastFailTS(siteID) < startTS {
			return siteID, true
		}
	}
	return 0, false
}

// --- commit / abort ---------------------------------------------------

// execEnd is only ever reached with tx still Active: admitTxOp and
// advancePending both gate on that before calling it, so a transaction
// already aborted (as a deadlock victim, say) never re-enters here.
func (tm *TransactionManager) execEnd(ts int64, txID int) {
	tx, ok := tm.txs[txID]
	if !ok {
		return
	}
	if tx.kind == RO {
		tx.state = Committed
		tm.sites.Emit(fmt.Sprintf("T%d commits", txID))
		if tm.metrics != nil {
			tm.metrics.Commits.Inc()
		}
		return
	}

	for siteID, epochAtAccess := range tx.sitesTouched {
		if tm.sites.FailEpoch(siteID) > epochAtAccess {
			tm.abortTx(tx, "touched site failed since access")
			return
		}
	}

	for varID, value := range tx.writes {
		targets := tm.sites.AvailableHostSites(varID)
		tm.sites.WriteAll(varID, ts, value, targets)
	}
	tx.state = Committed
	tm.locks.ReleaseAll(txID)
	tm.sites.Emit(fmt.Sprintf("T%d commits", txID))
	if tm.metrics != nil {
		tm.metrics.Commits.Inc()
	}
}

func (tm *TransactionManager) abortTx(tx *Transaction, reason string) {
	if tx.state != Active {
		return
	}
	tx.state = Aborted
	tx.writes = map[int]int{}
	tx.pending = nil
	tm.locks.ReleaseAll(tx.id)
	tm.removeFromQueues(tx.id)
	tm.logger.Info().Int("tx", tx.id).Str("reason", reason).Msg("transaction aborted")
	tm.sites.Emit(fmt.Sprintf("T%d aborts", tx.id))
	if tm.metrics != nil {
		tm.metrics.Aborts.Inc()
	}
}

func (tm *TransactionManager) removeFromQueues(txID int) {
	dropTx(tm.waitQueues, txID)
	dropTx(tm.dataWaiters, txID)
}

func dropTx(queues map[int][]parkedInstr, txID int) {
	for varID, q := range queues {
		filtered := q[:0]
		for _, p := range q {
			if p.txID != txID {
				filtered = append(filtered, p)
			}
		}
		queues[varID] = filtered
	}
}

// --- site events --------------------------------------------------

func (tm *TransactionManager) execFail(ts int64, siteID int) {
	tm.sites.Fail(ts, siteID)
	// Doomed is advisory/logging only: the authoritative staleness check
	// at commit compares fail epochs, not this flag.
	for _, tx := range tm.txs {
		if tx.state != Active || tx.kind != RW {
			continue
		}
		if epoch, touched := tx.sitesTouched[siteID]; touched && tm.sites.FailEpoch(siteID) > epoch {
			tx.doomed = true
			tm.logger.Debug().Int("tx", tx.id).Int("site", siteID).Msg("transaction will abort at commit")
		}
	}
}

func (tm *TransactionManager) execRecover(siteID int) {
	tm.sites.Recover(siteID)
}

// --- deadlock resolution & draining -----------------------------------

func (tm *TransactionManager) resolveDeadlocks() {
	for {
		victim, found := tm.locks.DetectDeadlock(func(id int) int64 {
			if tx, ok := tm.txs[id]; ok {
				return tx.startTS
			}
			return 0
		})
		if !found {
			return
		}
		tx, ok := tm.txs[victim]
		if !ok {
			return
		}
		tm.abortTx(tx, "deadlock victim")
		if tm.metrics != nil {
			tm.metrics.DeadlockVictims.Inc()
		}
	}
}

// drainAll retries parked instructions, lock-queue heads in FIFO order
// and then every data waiter, repeating full passes until one changes
// nothing.
func (tm *TransactionManager) drainAll() {
	for {
		changed := tm.drainLockQueues()
		if tm.drainDataWaiters() {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// drainLockQueues retries the head of every lock wait queue, popping it
// on success. A head still blocked on a lock keeps everything behind it
// parked (arrival FIFO); a head that turns out to be data-blocked moves
// to the data queue instead, so it stops holding up lock admission.
func (tm *TransactionManager) drainLockQueues() bool {
	changed := false
	for _, varID := range sortedKeysIntSlice(tm.waitQueues) {
		for len(tm.waitQueues[varID]) > 0 {
			head := tm.waitQueues[varID][0]
			tx, ok := tm.txs[head.txID]
			if !ok || tx.state != Active {
				tm.waitQueues[varID] = tm.waitQueues[varID][1:]
				changed = true
				continue
			}
			res := tm.coreRetry(tx, head.instr)
			if res == opWaitLock {
				break
			}
			// An abort inside coreRetry may already have removed the
			// head; only pop if it's still in place.
			if q := tm.waitQueues[varID]; len(q) > 0 && q[0] == head {
				tm.waitQueues[varID] = q[1:]
			}
			changed = true
			if res == opWaitData {
				tm.parkData(varID, head.instr)
				continue
			}
			tm.completeParked(tx, head.instr)
		}
	}
	return changed
}

// drainDataWaiters retries every data-blocked read. No FIFO constraint
// applies: these hold no locks, so serving one never steals a grant from
// another.
func (tm *TransactionManager) drainDataWaiters() bool {
	changed := false
	for _, varID := range sortedKeysIntSlice(tm.dataWaiters) {
		snapshot := append([]parkedInstr(nil), tm.dataWaiters[varID]...)
		for _, entry := range snapshot {
			tx, ok := tm.txs[entry.txID]
			if !ok || tx.state != Active {
				tm.removeDataWaiter(varID, entry)
				changed = true
				continue
			}
			if tm.coreRetry(tx, entry.instr) != opDone {
				continue
			}
			tm.removeDataWaiter(varID, entry)
			changed = true
			tm.completeParked(tx, entry.instr)
		}
	}
	return changed
}

func (tm *TransactionManager) removeDataWaiter(varID int, entry parkedInstr) {
	q := tm.dataWaiters[varID]
	for i, p := range q {
		if p == entry {
			tm.dataWaiters[varID] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// completeParked runs after a parked instruction finally succeeds: drop
// it from the transaction's own pending queue and advance that queue,
// letting whatever the transaction queued up behind it (another op, or
// end) run in turn.
func (tm *TransactionManager) completeParked(tx *Transaction, instr Instruction) {
	if tx.state != Active {
		return
	}
	tm.popFrontPending(tx, instr)
	tm.advancePending(tx)
}

func (tm *TransactionManager) coreRetry(tx *Transaction, instr Instruction) opResult {
	switch instr.Kind {
	case InstrRead:
		if tx.kind == RO {
			if tm.tryReadOnly(tx, instr.VarID) {
				return opDone
			}
			return opWaitData
		}
		return tm.coreTryRead(tx, instr.VarID)
	case InstrWrite:
		if tm.coreTryWrite(tx, instr.VarID, instr.Value) {
			return opDone
		}
		return opWaitLock
	default:
		return opDone
	}
}

func (tm *TransactionManager) popFrontPending(tx *Transaction, instr Instruction) {
	if len(tx.pending) > 0 && tx.pending[0] == instr {
		tx.pending = tx.pending[1:]
	}
}

// advancePending processes every instruction the transaction queued up
// behind its now-resolved operation, stopping as soon as one blocks
// again (it re-parks itself via tryOne) or the transaction ends.
func (tm *TransactionManager) advancePending(tx *Transaction) {
	for tx.state == Active && len(tx.pending) > 0 {
		next := tx.pending[0]
		if next.Kind == InstrEnd {
			tx.pending = tx.pending[1:]
			tm.execEnd(tm.currTS, tx.id)
			continue
		}
		if !tm.tryOne(tx, next) {
			return
		}
		// tryOne may have aborted the transaction (clearing pending), so
		// pop through the identity-checked helper.
		tm.popFrontPending(tx, next)
	}
}
