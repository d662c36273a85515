// Command main runs the demo data seeder for Freightdesk.
package main

import (
	"context"
	"flag"
	"log"

	"freightdesk/internal/config"
	"freightdesk/internal/database"
	"freightdesk/internal/seed"
)

func main() {
	numCarriers := flag.Int("carriers", 25, "Number of carrier entities to create")
	numDispatches := flag.Int("dispatches", 40, "Number of dispatch entities to create")
	shouldClean := flag.Bool("clean", true, "Clean workflow tables before seeding")
	flag.Parse()

	log.Printf("Target: %d carriers, %d dispatches, clean=%v", *numCarriers, *numDispatches, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	seeder := seed.NewSeeder(db)
	if err := seeder.Run(context.Background(), seed.Options{
		NumCarriers:   *numCarriers,
		NumDispatches: *numDispatches,
		ShouldClean:   *shouldClean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done. The review dashboards now have data in every stage.")
}
