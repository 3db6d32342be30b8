// Command party runs one DUORAM party node, either role A or B.
package main

import (
	"flag"
	"log"

	"duoram/partynode"
)

func main() {
	role := flag.String("role", "", "party role: A or B")
	rows := flag.Int("rows", 0, "number of logical rows (flat dimension for RecordWidth=1)")
	listen := flag.String("listen", ":4200", "client-facing listen address H:P")
	peerListen := flag.String("peer-listen", ":4201", "peer-facing listen address H:P")
	peer := flag.String("peer", "", "other party's peer-facing address H:P")
	share := flag.String("share", ":4100", "pairing server address H:P")
	flag.Parse()

	if *rows <= 0 {
		log.Fatalf("party: --rows must be > 0")
	}
	var r partynode.Role
	switch *role {
	case "A", "a":
		r = partynode.RoleA
	case "B", "b":
		r = partynode.RoleB
	default:
		log.Fatalf("party: --role must be A or B, got %q", *role)
	}

	p, err := partynode.Listen(r, *rows, *listen, *peerListen, *peer, *share, nil)
	if err != nil {
		log.Fatalf("party: %v", err)
	}
	log.Printf("party[%s]: client on %s, peer on %s", r, p.ClientAddr(), p.PeerAddr())
	if err := p.Serve(); err != nil {
		log.Fatalf("party: %v", err)
	}
}
