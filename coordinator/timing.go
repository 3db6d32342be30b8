package coordinator

import (
	"fmt"
	"os"
	"time"

	"github.com/markkurossi/tabulate"
)

// Timing records round-trip durations for a coordinator's Read/Write
// calls and renders them as a table, grounded on circuit/timing.go's
// tabulate-based profiling report, scaled down from the gate-timing
// breakdown there to a flat list of per-operation samples.
type Timing struct {
	samples []sample
}

type sample struct {
	op       string
	idx      int
	duration time.Duration
	err      error
}

// NewTiming returns an empty Timing recorder.
func NewTiming() *Timing {
	return &Timing{}
}

// Record appends one operation's outcome.
func (t *Timing) Record(op string, idx int, duration time.Duration, err error) {
	t.samples = append(t.samples, sample{op: op, idx: idx, duration: duration, err: err})
}

// Print renders the recorded samples as a table to stdout.
func (t *Timing) Print() {
	if len(t.samples) == 0 {
		fmt.Println("no operations recorded")
		return
	}

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Op").SetAlign(tabulate.ML)
	tab.Header("Idx").SetAlign(tabulate.MR)
	tab.Header("Time").SetAlign(tabulate.MR)
	tab.Header("Status").SetAlign(tabulate.ML)

	var total time.Duration
	for _, s := range t.samples {
		row := tab.Row()
		row.Column(s.op)
		row.Column(fmt.Sprintf("%d", s.idx))
		row.Column(s.duration.String())
		if s.err != nil {
			row.Column(s.err.Error())
		} else {
			row.Column("ok")
		}
		total += s.duration
	}

	row := tab.Row()
	row.Column("Total").SetFormat(tabulate.FmtBold)
	row.Column("")
	row.Column(total.String()).SetFormat(tabulate.FmtBold)
	row.Column("")

	tab.Print(os.Stdout)
}
