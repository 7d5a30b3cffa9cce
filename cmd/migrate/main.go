package main

import (
	"context"
	"log"
	"os"

	"imfitboot/adapters/sqlstore"
	"imfitboot/internal/errors"
)

// migrate copies stored runs from one run store to another, typically from a
// local sqlite file into a shared postgres database. Runs already present in
// the destination are skipped.
func main() {
	if len(os.Args) < 5 {
		log.Fatal("Usage: migrate <src_driver> <src_url> <dst_driver> <dst_url>")
	}

	srcDriver, srcURL := os.Args[1], os.Args[2]
	dstDriver, dstURL := os.Args[3], os.Args[4]

	log.Printf("Starting migration from %s to %s", srcDriver, dstDriver)

	ctx := context.Background()

	srcDB, err := sqlstore.Open(ctx, srcDriver, srcURL)
	if err != nil {
		log.Fatalf("Failed to open source store: %v", err)
	}
	defer srcDB.Close()

	dstDB, err := sqlstore.Open(ctx, dstDriver, dstURL)
	if err != nil {
		log.Fatalf("Failed to open destination store: %v", err)
	}
	defer dstDB.Close()

	src := sqlstore.NewRunRepository(srcDB)
	dst := sqlstore.NewRunRepository(dstDB)

	runs, err := src.List(ctx, 0)
	if err != nil {
		log.Fatalf("Failed to list source runs: %v", err)
	}

	log.Printf("Found %d runs to migrate", len(runs))

	migrated := 0
	skipped := 0

	for _, summary := range runs {
		if _, err := dst.Get(ctx, summary.ID); err == nil {
			log.Printf("Run %s already present, skipping", summary.ID)
			skipped++
			continue
		} else if errors.GetCode(err) != errors.CodeNotFound {
			log.Printf("Failed to check run %s: %v", summary.ID, err)
			skipped++
			continue
		}

		r, err := src.Get(ctx, summary.ID)
		if err != nil {
			log.Printf("Failed to load run %s: %v", summary.ID, err)
			skipped++
			continue
		}

		if err := dst.Save(ctx, r); err != nil {
			log.Printf("Failed to save run %s: %v", summary.ID, err)
			skipped++
			continue
		}

		migrated++
		log.Printf("Migrated run %s (%s, %d trials)", r.ID, r.Quantity, r.Trials())
	}

	log.Printf("Migration complete: %d migrated, %d skipped", migrated, skipped)
}
