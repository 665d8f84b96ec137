package engine

import "errors"

// Sentinel errors, typed for errors.Is/errors.As on the caller side.
// None of these ever appear in the instruction output stream, which only
// carries reads, commits, aborts, and dumps. ErrMalformedInstruction is
// returned by internal/instr.Parse for a line it cannot tokenize. No code
// returns ErrUnknownTransaction, ErrUnknownVariable or ErrUnknownSite:
// Engine.Step returns nothing, and an instruction naming an unknown
// transaction or site is ignored.
var (
	ErrUnknownTransaction   = errors.New("repcrec: unknown transaction")
	ErrUnknownVariable      = errors.New("repcrec: unknown variable")
	ErrUnknownSite          = errors.New("repcrec: unknown site")
	ErrMalformedInstruction = errors.New("repcrec: malformed instruction")
)

// SiteCount and VarCount are the engine's fixed configuration. Engine
// accepts overrides via WithSiteCount/WithVarCount for smaller test
// configurations; the CLI always wires these defaults.
const (
	SiteCount = 10
	VarCount  = 20
)
