// Command trail-plot renders the smoothed track trails of a recorded session
// to an image.
//
// Usage:
//
//	trail-plot -db attention.db [-session ID] [-out trails.png]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/report"
)

func main() {
	dbPath := flag.String("db", "attention.db", "SQLite session database")
	sessionID := flag.String("session", "", "Session to plot (newest when empty)")
	out := flag.String("out", "trails.png", "Output image; format follows the extension")
	list := flag.Bool("list", false, "List recorded sessions and exit")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("database %s: %v", *dbPath, err)
	}
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	sessions, err := database.ListSessions(ctx)
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}

	if *list {
		for _, s := range sessions {
			fmt.Printf("%s  %s  %-9s  %d frames\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Policy, s.Frames)
		}
		return
	}

	id := *sessionID
	if id == "" {
		if len(sessions) == 0 {
			log.Fatalf("no sessions recorded in %s", *dbPath)
		}
		id = sessions[0].ID
	}

	trails, err := database.TrackTrails(ctx, id)
	if err != nil {
		log.Fatalf("failed to load trails: %v", err)
	}
	title := fmt.Sprintf("Session %s (%d tracks)", id, len(trails))
	if err := report.PlotTrails(trails, *out, report.TrailOptions{Title: title}); err != nil {
		log.Fatalf("failed to plot trails: %v", err)
	}
	log.Printf("wrote %s", *out)
}
