// Command duoram-string demonstrates the fixed-width multi-element
// record supplement by writing and reading short ASCII strings
// through a Coordinator with RecordWidth set to --width,
// mirroring user_facing_api.py's STR_SIZE=10 demo generalized to a
// configurable width.
package main

import (
	"flag"
	"fmt"
	"log"

	"duoram/coordinator"
	"duoram/ring"
)

func main() {
	op := flag.String("op", "", "operation: write or read")
	dim := flag.Int("dim", 0, "number of logical rows")
	idx := flag.Int("idx", -1, "row index")
	val := flag.String("val", "", "string to write (write only); padded/truncated to --width")
	width := flag.Int("width", 10, "fixed record width in bytes, mirroring STR_SIZE")
	c0 := flag.String("c0", "", "party A client-facing address H:P")
	c1 := flag.String("c1", "", "party B client-facing address H:P")
	flag.Parse()

	if *dim <= 0 || *idx < 0 || *c0 == "" || *c1 == "" {
		log.Fatalf("duoram-string: --dim, --idx, --c0, --c1 are required")
	}

	coord, err := coordinator.New(*c0, *c1, *dim, nil, coordinator.WithRecordWidth(*width))
	if err != nil {
		log.Fatalf("duoram-string: %v", err)
	}

	switch *op {
	case "write":
		rec := stringToRecord(*val, *width)
		if err := coord.Write(*idx, rec); err != nil {
			log.Fatalf("duoram-string: write failed: %v", err)
		}
		fmt.Printf("WRITE idx=%d value=%q\n", *idx, *val)

	case "read":
		rec, err := coord.Read(*idx)
		if err != nil {
			log.Fatalf("duoram-string: read failed: %v", err)
		}
		fmt.Printf("READ idx=%d value=%q\n", *idx, recordToString(rec))

	default:
		log.Fatalf("duoram-string: --op must be write or read, got %q", *op)
	}
}

// stringToRecord truncates or zero-pads s to width bytes, one ring
// element per byte.
func stringToRecord(s string, width int) []ring.Element {
	rec := make([]ring.Element, width)
	b := []byte(s)
	for i := 0; i < width && i < len(b); i++ {
		rec[i] = ring.New(uint32(b[i]))
	}
	return rec
}

// recordToString reverses stringToRecord, stopping at the first zero
// byte so padding does not show up as NUL characters.
func recordToString(rec []ring.Element) string {
	b := make([]byte, 0, len(rec))
	for _, e := range rec {
		v := e.Uint32()
		if v == 0 {
			break
		}
		b = append(b, byte(v))
	}
	return string(b)
}
