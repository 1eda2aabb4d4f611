package main

import (
	"log"
	"os"

	"github.com/mohammad-safakhou/docser/internal/server"
)

func main() {
	addr := os.Getenv("DOCSER_HTTP_ADDR")

	if err := server.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
