package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/quirylabs/quiry-backend/internal/app"
	"github.com/quirylabs/quiry-backend/internal/platform/logger"
)

func main() {
	// Best-effort; production sets real environment variables.
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := app.Run(log); err != nil {
		log.Fatal("Fatal", "error", err)
	}
}
