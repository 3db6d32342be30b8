// Command control-client enrolls against a control-server and sends
// the --msg message, printing the server's ACK; without --msg it sends
// each line read from stdin, mirroring rotating_key_enc/client.py's
// interactive loop.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"duoram/control"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4300", "control server address H:P")
	user := flag.String("user", "alice", "username")
	pass := flag.String("pass", "correct horse battery staple", "password")
	msg := flag.String("msg", "", "message to send; if empty, read lines from stdin")
	flag.Parse()

	c, err := control.Enroll(*addr, *user, *pass, nil)
	if err != nil {
		log.Fatalf("control-client: enroll: %v", err)
	}
	defer c.Close()

	if *msg != "" {
		ack, err := c.Send(*msg)
		if err != nil {
			log.Fatalf("control-client: send: %v", err)
		}
		fmt.Println(ack)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		ack, err := c.Send(scanner.Text())
		if err != nil {
			log.Fatalf("control-client: send: %v", err)
		}
		fmt.Println(ack)
	}
}
