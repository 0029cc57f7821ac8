// Command serve-admin connects to the ops HTTP surface's admin feed
// (/admin/feed) and prints every ride-request event as it arrives, a
// minimal stand-in for a real admin dashboard's live view.
package main

import (
	"flag"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "ops HTTP address")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/admin/feed"}
	log.Printf("connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial admin feed: %v", err)
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("feed closed: %v", err)
			return
		}
		log.Printf("%s", message)
	}
}
