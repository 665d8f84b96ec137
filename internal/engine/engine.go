// Package engine implements the replicated concurrency-control and
// recovery core: SiteCount sites holding VarCount variables, available-
// copies reads, strict two-phase locking, snapshot-isolated read-only
// transactions, and cycle-based deadlock detection. The package owns no
// global state; every operation is a method on an Engine value.
package engine

import "github.com/rs/zerolog"

// Engine is the single entry point a driver uses to replay an
// instruction stream. It is not safe for concurrent use: execution is
// single-threaded and cooperative, with exactly one caller advancing
// the clock, so Engine holds no mutexes, atomics, or background
// goroutines.
type Engine struct {
	siteMgr *SiteManager
	lockMgr *LockManager
	txMgr   *TransactionManager
	logger  zerolog.Logger
	metrics *Metrics
	ts      int64
}

// New constructs an Engine with SiteCount sites and VarCount variables
// (or the Option-overridden counts), ready to accept instructions at
// timestamp 1.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	sink := newOutputSink(cfg.out)
	sites := newSiteManager(cfg.siteCount, cfg.varCount, sink, cfg.logger)
	locks := newLockManager(sites, cfg.logger)
	txs := newTransactionManager(sites, locks, cfg.metrics, cfg.logger)

	return &Engine{
		siteMgr: sites,
		lockMgr: locks,
		txMgr:   txs,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Step admits one instruction, assigning it the next monotonically
// increasing timestamp.
func (e *Engine) Step(instr Instruction) {
	e.ts++
	e.txMgr.Admit(e.ts, instr)
	e.refreshGauges()
}

// Dump emits every site's state immediately, at the engine's current
// position in the instruction stream.
func (e *Engine) Dump() {
	e.txMgr.Dump()
}

// Finish quiesces outstanding waits and emits the final synthetic dump
// once a driver has exhausted its input.
func (e *Engine) Finish() {
	e.txMgr.Quiesce()
	e.Dump()
}

// HasOutstandingWork reports whether any transaction is still active or
// any instruction remains parked.
func (e *Engine) HasOutstandingWork() bool {
	return e.txMgr.HasOutstandingWork()
}

// Metrics returns the Metrics bundle this Engine updates, or nil if none
// was attached via WithMetrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}
