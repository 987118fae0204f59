// Command demolot starts a demo dealer site for trying lotsync end to end.
// Usage: go run ./cmd/demolot [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/lotsync/internal/demolot"
)

func main() {
	cfg := demolot.DefaultConfig()

	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   lotsync demo lot")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("Dealer inventory pages embed schema.org JSON-LD.")
	fmt.Println("Use the control panel to sell cars, change prices,")
	fmt.Println("break inventory pages or garble a listing, then run")
	fmt.Println("a reconcile job and watch the summary.")
	fmt.Println()

	if err := demolot.New(cfg).Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
