// Package events records structured observability events for the
// orchestrator: one match event per served request, one attempt event per
// engine attempt, and state-transition events for breakers and rollout
// stages.
//
// # Architecture
//
//  1. Recorder - accepts events with a non-blocking send and writes them
//     from a background worker
//  2. Storage - persists events (SQLite or memory)
//  3. Retention - prunes old events on a cron schedule
//  4. Export - renders query results as JSON or CSV
//
// The request path never waits on event storage. When the recorder's buffer
// is full the event is dropped and counted.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/events.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec := recorder.New(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	rec.Emit(&events.Event{Kind: events.KindRollout, From: "10", To: "25"})
package events
