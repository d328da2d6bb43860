package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/cmd/server"
)

func main() {
	srv, err := server.NewServer()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := srv.Run(); err != nil {
		srv.Log.Fatal("server_failed", zap.Error(err))
	}
}
