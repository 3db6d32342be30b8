// Command pairing-server runs the Du-Atallah triple pairing server
// standalone.
package main

import (
	"flag"
	"log"

	"duoram/pairing"
)

func main() {
	listen := flag.String("listen", ":4100", "pairing server listen address HOST:PORT")
	flag.Parse()

	srv, err := pairing.Listen(*listen, nil)
	if err != nil {
		log.Fatalf("pairing-server: %v", err)
	}
	log.Printf("pairing-server: listening on %s", srv.Addr())
	if err := srv.Serve(); err != nil {
		log.Fatalf("pairing-server: %v", err)
	}
}
