// Command coordinator issues a single READ or WRITE against a pair of
// DUORAM party nodes, or prints a timing table for a short benchmark
// run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"duoram/coordinator"
	"duoram/ring"
)

func main() {
	op := flag.String("op", "", "operation: read, write, or stats")
	dim := flag.Int("dim", 0, "logical row count")
	idx := flag.Int("idx", -1, "logical row index")
	val := flag.Uint64("val", 0, "value to write (write only)")
	recordWidth := flag.Int("record-width", 1, "ring elements per logical record")
	c0 := flag.String("c0", "", "party A client-facing address H:P")
	c1 := flag.String("c1", "", "party B client-facing address H:P")
	flag.Parse()

	if *dim <= 0 {
		log.Fatalf("coordinator: --dim must be > 0")
	}
	if *c0 == "" || *c1 == "" {
		log.Fatalf("coordinator: --c0 and --c1 are required")
	}

	coord, err := coordinator.New(*c0, *c1, *dim, nil, coordinator.WithRecordWidth(*recordWidth))
	if err != nil {
		log.Fatalf("coordinator: %v", err)
	}

	switch *op {
	case "read":
		if *idx < 0 {
			log.Fatalf("coordinator: --idx is required for read")
		}
		vals, err := coord.Read(*idx)
		if err != nil {
			log.Fatalf("coordinator: read failed: %v", err)
		}
		fmt.Println(formatRecord(vals))

	case "write":
		if *idx < 0 {
			log.Fatalf("coordinator: --idx is required for write")
		}
		vals := make([]ring.Element, *recordWidth)
		vals[0] = ring.New(uint32(*val))
		if err := coord.Write(*idx, vals); err != nil {
			log.Fatalf("coordinator: write failed: %v", err)
		}
		fmt.Println("OK")

	case "stats":
		runStats(coord, *dim)

	default:
		log.Fatalf("coordinator: --op must be read, write, or stats, got %q", *op)
	}
	os.Exit(0)
}

// runStats drives a handful of round trips across the store and
// prints a tabulate-rendered timing report, a diagnostic view of where
// time goes alongside the plain read/write CLI.
func runStats(coord *coordinator.Coordinator, dim int) {
	timing := coordinator.NewTiming()
	for i := 0; i < dim; i++ {
		start := time.Now()
		err := coord.Write(i, []ring.Element{ring.New(uint32(i))})
		timing.Record("write", i, time.Since(start), err)

		start = time.Now()
		_, err = coord.Read(i)
		timing.Record("read", i, time.Since(start), err)
	}
	timing.Print()
}

func formatRecord(vals []ring.Element) string {
	if len(vals) == 1 {
		return vals[0].String()
	}
	s := "["
	for i, v := range vals {
		if i > 0 {
			s += " "
		}
		s += v.String()
	}
	return s + "]"
}
