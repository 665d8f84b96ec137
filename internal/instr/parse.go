// Package instr tokenizes one instruction line into an
// engine.Instruction. The engine core never sees raw text, only
// already-parsed Instruction values; this package is where the CLI
// produces them.
package instr

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nyudb/repcrec/internal/engine"
)

var (
	reBegin   = regexp.MustCompile(`^begin\(\s*T(\d+)\s*\)$`)
	reBeginRO = regexp.MustCompile(`^beginRO\(\s*T(\d+)\s*\)$`)
	reRead    = regexp.MustCompile(`^R\(\s*T(\d+)\s*,\s*x(\d+)\s*\)$`)
	reWrite   = regexp.MustCompile(`^W\(\s*T(\d+)\s*,\s*x(\d+)\s*,\s*(-?\d+)\s*\)$`)
	reEnd     = regexp.MustCompile(`^end\(\s*T(\d+)\s*\)$`)
	reFail    = regexp.MustCompile(`^fail\(\s*(\d+)\s*\)$`)
	reRecover = regexp.MustCompile(`^recover\(\s*(\d+)\s*\)$`)
	reDump    = regexp.MustCompile(`^dump\(\s*\)$`)
)

// Parse tokenizes a single non-blank instruction line. Whitespace inside
// the parens is insignificant; the line itself should already be trimmed
// of surrounding whitespace by the caller.
func Parse(line string) (engine.Instruction, error) {
	switch {
	case reBegin.MatchString(line):
		m := reBegin.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrBegin, TxID: atoi(m[1])}, nil

	case reBeginRO.MatchString(line):
		m := reBeginRO.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrBeginRO, TxID: atoi(m[1])}, nil

	case reRead.MatchString(line):
		m := reRead.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrRead, TxID: atoi(m[1]), VarID: atoi(m[2])}, nil

	case reWrite.MatchString(line):
		m := reWrite.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrWrite, TxID: atoi(m[1]), VarID: atoi(m[2]), Value: atoi(m[3])}, nil

	case reEnd.MatchString(line):
		m := reEnd.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrEnd, TxID: atoi(m[1])}, nil

	case reFail.MatchString(line):
		m := reFail.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrFail, SiteID: atoi(m[1])}, nil

	case reRecover.MatchString(line):
		m := reRecover.FindStringSubmatch(line)
		return engine.Instruction{Kind: engine.InstrRecover, SiteID: atoi(m[1])}, nil

	case reDump.MatchString(line):
		return engine.Instruction{Kind: engine.InstrDump}, nil

	default:
		return engine.Instruction{}, fmt.Errorf("%w: %q", engine.ErrMalformedInstruction, line)
	}
}

// IsDump reports whether line (already trimmed) is a dump() instruction.
// cmd/repcrec skips inline dumps while reading and emits a single dump
// once all other instructions have drained.
func IsDump(line string) bool {
	return reDump.MatchString(line)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
