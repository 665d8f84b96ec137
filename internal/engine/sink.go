package engine

import (
	"fmt"
	"io"
)

// OutputSink is the single process-wide writer every engine event is
// appended to, in execution order. SiteManager owns it; the
// TransactionManager writes through the SiteManager rather than holding
// its own handle, so there is exactly one place output can be produced.
type OutputSink struct {
	w io.Writer
}

func newOutputSink(w io.Writer) *OutputSink {
	return &OutputSink{w: w}
}

func (s *OutputSink) emit(line string) {
	fmt.Fprintln(s.w, line)
}
