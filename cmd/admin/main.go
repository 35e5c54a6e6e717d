package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mullmine/backend/internal/storage"
)

// Moderation CLI: verify or unverify users and work through the report
// queue. Runs against the same database as the server; no Redis needed.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		log.Fatal("DATABASE_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := storage.NewService(db, nil, logger)
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "verify":
		if len(os.Args) != 3 {
			usage()
		}
		if err := store.SetVerified(ctx, os.Args[2], true); err != nil {
			log.Fatalf("Error verifying user: %v", err)
		}
		fmt.Printf("User %s is now verified.\n", os.Args[2])
	case "unverify":
		if len(os.Args) != 3 {
			usage()
		}
		if err := store.SetVerified(ctx, os.Args[2], false); err != nil {
			log.Fatalf("Error unverifying user: %v", err)
		}
		fmt.Printf("User %s is no longer verified.\n", os.Args[2])
	case "reports":
		includeResolved := len(os.Args) > 2 && os.Args[2] == "--all"
		reports, err := store.ListReports(ctx, includeResolved)
		if err != nil {
			log.Fatalf("Error listing reports: %v", err)
		}
		if len(reports) == 0 {
			fmt.Println("No reports.")
			return
		}
		for _, r := range reports {
			status := "open"
			if r.Resolved {
				status = "resolved"
			}
			fmt.Printf("%s  [%s]  reporter=%s reported=%s room=%s messages=%d\n",
				r.ID, status, r.ReporterID, r.ReportedID, r.RoomID, len(r.Messages))
		}
	case "show-report":
		if len(os.Args) != 3 {
			usage()
		}
		reports, err := store.ListReports(ctx, true)
		if err != nil {
			log.Fatalf("Error listing reports: %v", err)
		}
		for _, r := range reports {
			if r.ID != os.Args[2] {
				continue
			}
			fmt.Printf("Report %s\nReporter: %s\nReported: %s\nRoom: %s\n\n", r.ID, r.ReporterID, r.ReportedID, r.RoomID)
			for _, line := range r.Messages {
				fmt.Println(line)
			}
			return
		}
		log.Fatalf("Report %s not found", os.Args[2])
	case "resolve":
		if len(os.Args) != 3 {
			usage()
		}
		if err := store.ResolveReport(ctx, os.Args[2]); err != nil {
			log.Fatalf("Error resolving report: %v", err)
		}
		fmt.Printf("Report %s has been resolved.\n", os.Args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Println(`Usage: admin <command> [args]

Commands:
  verify <user_id>        mark a user as verified
  unverify <user_id>      remove a user's verified status
  reports [--all]         list open (or all) reports
  show-report <report_id> print a report with its transcript
  resolve <report_id>     mark a report as resolved`)
	os.Exit(1)
}
