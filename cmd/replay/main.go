// Command replay inspects what a bot run left behind: the text event log,
// the zstd event archive, world snapshots and the sqlite index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"renderbot.ai/internal/eventlog"
	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/persistence/archive"
	"renderbot.ai/internal/persistence/indexdb"
	"renderbot.ai/internal/persistence/snapshot"
	"renderbot.ai/internal/protocol"
)

func main() {
	var (
		logPath   = flag.String("log", "", "text event log (game_events.txt)")
		eventsDir = flag.String("events", "", "archive dir containing events-*.jsonl.zst")
		snapPath  = flag.String("snapshot", "", "world snapshot (.snap.zst); checks event positions against its height map")
		dbPath    = flag.String("db", "", "sqlite index")
		session   = flag.String("session", "", "restrict -events and -db to one session")
		quiet     = flag.Bool("q", false, "print only the summary")
	)
	flag.Parse()

	if *logPath == "" && *eventsDir == "" && *snapPath == "" && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -log, -events, -snapshot or -db")
		os.Exit(2)
	}

	var idx *heightmap.Index
	if *snapPath != "" {
		snap, err := snapshot.Read(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		idx = heightmap.FromWorld(snap.World())
		fmt.Printf("snapshot v%d renderer=%s taken_at=%s features=%d cells=%d\n",
			snap.Header.Version, snap.Header.Renderer, snap.Header.TakenAt.Format(time.RFC3339), snap.Header.Features, idx.Len())
	}

	if *logPath != "" {
		f, err := os.Open(*logPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log:", err)
			os.Exit(1)
		}
		evs, err := eventlog.ReadAll(f)
		_ = f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "read log:", err)
			os.Exit(1)
		}
		report(*logPath, evs, idx, *quiet)
	}

	if *eventsDir != "" {
		recs, err := archive.ReadDir(*eventsDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read archive:", err)
			os.Exit(1)
		}
		evs, err := archiveEvents(recs, *session)
		if err != nil {
			fmt.Fprintln(os.Stderr, "archive:", err)
			os.Exit(1)
		}
		report(*eventsDir, evs, idx, *quiet)
	}

	if *dbPath != "" {
		if err := queryIndex(*dbPath, *session, *quiet); err != nil {
			fmt.Fprintln(os.Stderr, "index:", err)
			os.Exit(1)
		}
	}
}

func archiveEvents(recs []archive.Record, session string) ([]protocol.GameEvent, error) {
	out := make([]protocol.GameEvent, 0, len(recs))
	for _, r := range recs {
		if session != "" && r.Session != session {
			continue
		}
		ev, err := r.Event()
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func report(source string, evs []protocol.GameEvent, idx *heightmap.Index, quiet bool) {
	if !quiet {
		for i, ev := range evs {
			fmt.Printf("%4d %s\n", i+1, eventlog.Format(ev))
		}
	}
	s := Summarize(evs, idx)
	fmt.Printf("%s: %s\n", source, s)
}

func queryIndex(path, session string, quiet bool) error {
	db, err := indexdb.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	if session == "" {
		rows, err := db.Sessions(ctx, 50)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%s renderer=%s started=%s features=%d iterations=%d reached_goal=%t\n",
				r.ID, r.Renderer, r.StartedAt.Format(time.RFC3339), r.Features, r.Iterations, r.ReachedGoal)
		}
		return nil
	}

	rows, err := db.Events(ctx, session)
	if err != nil {
		return err
	}
	evs := make([]protocol.GameEvent, 0, len(rows))
	for _, r := range rows {
		inst, ok := protocol.ParseInstruction(r.Instruction)
		if !ok {
			return fmt.Errorf("event %d: unknown instruction %q", r.Seq, r.Instruction)
		}
		evs = append(evs, protocol.GameEvent{
			Instruction: inst,
			Status:      protocol.Status(r.Status),
			Message:     r.Message,
			Position:    protocol.Position{X: r.X, Y: r.Y, Z: r.Z},
		})
	}
	report(path+"#"+session, evs, nil, quiet)
	return nil
}
