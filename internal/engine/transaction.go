package engine

// TxKind distinguishes a read-write transaction from a read-only one.
type TxKind int

const (
	RW TxKind = iota
	RO
)

// TxState is the transaction lifecycle: active -> committed | aborted.
type TxState int

const (
	Active TxState = iota
	Committed
	Aborted
)

func (s TxState) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is a per-transaction record. RW transactions accumulate a
// write buffer applied atomically at commit and a record of every site
// they touched, tagged with that site's fail epoch at the moment of
// access, the basis of the staleness check at commit. RO
// transactions never touch the write buffer or the lock manager; they
// read a multiversion snapshot populated lazily from commit history.
type Transaction struct {
	id      int
	startTS int64
	kind    TxKind
	state   TxState

	writes       map[int]int // varID -> pending value (RW only)
	sitesTouched map[int]int // siteID -> fail epoch at first access (RW only)
	doomed       bool        // set when a touched site fails; commit still re-checks epochs

	snapshot        map[int]int  // varID -> value (RO only)
	snapshotPending map[int]bool // varID -> awaiting an eligible copy (RO only)

	// pending is this transaction's own private FIFO of instructions not
	// yet dispatched: a transaction issues its operations in program
	// order, so once one blocks, every later instruction for the same
	// transaction, end included, must wait behind it rather than
	// jump ahead just because a different variable or site is involved.
	pending []Instruction
}

func newTransaction(id int, startTS int64, kind TxKind) *Transaction {
	tx := &Transaction{
		id:      id,
		startTS: startTS,
		kind:    kind,
		state:   Active,
	}
	if kind == RW {
		tx.writes = make(map[int]int)
		tx.sitesTouched = make(map[int]int)
	} else {
		tx.snapshot = make(map[int]int)
		tx.snapshotPending = make(map[int]bool)
	}
	return tx
}

// recordSiteAccess notes the first fail epoch observed for siteID. Later
// accesses from the same transaction never overwrite it: the earliest
// epoch is strictly sufficient for the commit-time staleness check,
// since any failure after that epoch will already show as a mismatch.
func (tx *Transaction) recordSiteAccess(siteID, epoch int) {
	if _, ok := tx.sitesTouched[siteID]; !ok {
		tx.sitesTouched[siteID] = epoch
	}
}
