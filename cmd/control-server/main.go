// Command control-server runs the rotating-key control channel
// server. It ships one demo user, mirroring
// rotating_key_enc/server.py's hardcoded USERS table, plus an
// optional flag to add another.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"strings"

	"duoram/control"
)

func main() {
	listen := flag.String("listen", ":4300", "control server listen address H:P")
	dir := flag.String("keydir", ".", "directory holding the keys/ subdirectory for the RSA key pair")
	extraUser := flag.String("user", "", "additional demo user as username:password")
	flag.Parse()

	users := map[string]string{
		"alice": passHash("correct horse battery staple"),
	}
	if *extraUser != "" {
		parts := strings.SplitN(*extraUser, ":", 2)
		if len(parts) != 2 {
			log.Fatalf("control-server: --user must be username:password")
		}
		users[parts[0]] = passHash(parts[1])
	}

	srv, err := control.Listen(*listen, *dir, users, nil)
	if err != nil {
		log.Fatalf("control-server: %v", err)
	}
	log.Printf("control-server: listening on %s", srv.Addr())
	if err := srv.Serve(); err != nil {
		log.Fatalf("control-server: %v", err)
	}
}

func passHash(pw string) string {
	h := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(h[:])
}
