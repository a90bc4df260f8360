package main

import (
	"log"

	"github.com/MrSnakeDoc/serpwatch/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ serpwatch failed: %v", err)
	}
}
