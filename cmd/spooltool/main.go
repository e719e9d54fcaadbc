// Command spooltool inspects the local telemetry spool (stats, pending
// batches, and the messages they carry) without needing the gateway
// itself running, for debugging a stalled publisher or a disk-cap
// eviction.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/anodyne74/canedge/internal/spool"
)

func main() {
	var (
		dbPath     string
		action     string
		limit      int
		formatJSON bool
	)

	flag.StringVar(&dbPath, "db", "spool.db", "path to the spool SQLite database")
	flag.StringVar(&action, "action", "stats", "action: stats, list, dump")
	flag.IntVar(&limit, "limit", 20, "max batches to list or dump")
	flag.BoolVar(&formatJSON, "json", false, "output in JSON format")
	flag.Parse()

	store, err := spool.Open(dbPath, log.New(os.Stderr, "spooltool: ", log.LstdFlags))
	if err != nil {
		log.Fatalf("spooltool: opening %s: %v", dbPath, err)
	}
	defer store.Close()

	switch action {
	case "stats":
		runStats(store, formatJSON)
	case "list":
		runList(store, limit, formatJSON)
	case "dump":
		runDump(store, limit, formatJSON)
	default:
		log.Fatalf("spooltool: unknown action %q (want stats, list, dump)", action)
	}
}

func runStats(store *spool.Store, formatJSON bool) {
	st, err := store.Stats()
	if err != nil {
		log.Fatalf("spooltool: reading stats: %v", err)
	}
	if formatJSON {
		emit(st)
		return
	}
	fmt.Printf("pending batches: %d\nsent batches:    %d\ndisk bytes:      %d\n",
		st.PendingBatches, st.SentBatches, st.DiskBytes)
}

func runList(store *spool.Store, limit int, formatJSON bool) {
	batches, err := store.Pending(limit)
	if err != nil {
		log.Fatalf("spooltool: listing pending batches: %v", err)
	}
	if formatJSON {
		emit(batches)
		return
	}
	for _, b := range batches {
		fmt.Printf("batch %d  %s  %d bytes uncompressed\n", b.ID, b.Timestamp.Format("2006-01-02T15:04:05Z"), b.UncompressedSize)
	}
	fmt.Printf("%d batch(es) pending\n", len(batches))
}

func runDump(store *spool.Store, limit int, formatJSON bool) {
	batches, err := store.Pending(limit)
	if err != nil {
		log.Fatalf("spooltool: listing pending batches: %v", err)
	}
	var all []spool.Message
	for _, b := range batches {
		messages, err := spool.Decompress(b)
		if err != nil {
			log.Fatalf("spooltool: decompressing batch %d: %v", b.ID, err)
		}
		all = append(all, messages...)
	}
	if formatJSON {
		emit(all)
		return
	}
	for _, m := range all {
		fmt.Printf("%s  %s  %s  %s\n", m.Timestamp.Format("2006-01-02T15:04:05Z"), m.VIN, m.TelemetryType, m.MessageID)
	}
	fmt.Printf("%d message(s) across %d batch(es)\n", len(all), len(batches))
}

func emit(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("spooltool: encoding output: %v", err)
	}
}
