package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/adapter/postgres"
	"github.com/ironledgerdev/myBusApp/internal/platform/logging"
)

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		withTrips   = flag.Bool("with-trips", false, "Also create sample trips and feedback (not idempotent)")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", redactURL(*databaseURL))

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	s := &seeder{repo: postgres.NewFleetRepo(pool), now: time.Now}
	stats, err := s.run(ctx, *withTrips)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	slog.Info("Seeding complete",
		"stops", stats.Stops,
		"buses", stats.Buses,
		"routes", stats.Routes,
		"drivers", stats.Drivers,
		"assignments", stats.Assignments,
		"trips", stats.Trips,
		"feedback", stats.Feedback)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
