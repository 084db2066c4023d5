package main

import (
	"os"

	"techdigest/cmd/handlers"
	"techdigest/internal/logger"
)

func main() {
	logger.Init()

	if err := handlers.Execute(); err != nil {
		os.Exit(1)
	}
}
