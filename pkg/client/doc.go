// Package client holds THE CORE's two external interface boundaries.
//
// Client is the primary one: THE CORE has no network admission service
// (spec.md §6 describes a filesystem layout and an assistant subprocess
// contract, nothing else), so submitting, listing, and retrying tasks all
// happen by opening the same Store/Queue/DLQ files the supervisor itself
// reads and writes.
//
//	cfg, err := config.Load()
//	c, err := client.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	t := task.New("demo", "echo hi", task.PriorityNormal)
//	if err := c.Submit(ctx, t); err != nil {
//	    log.Fatal(err)
//	}
//
// StatusClient is the secondary, read-only boundary for callers that only
// need to observe task/worker/alert state, possibly from a different host:
// it talks to internal/statusapi's plain JSON endpoints over net/http and
// streams live events over its WebSocket, rather than opening any files
// itself. Adapted from the teacher's generated-SDK client; the generated
// transport is gone since the status API exposes no write operations for it
// to model.
//
//	sc, err := client.NewStatusClient("http://localhost:8081")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tasks, err := sc.ListTasks(ctx, "")
//
// # WebSocket events
//
//	if err := sc.ConnectWebSocket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sc.CloseWebSocket()
//
//	for event := range sc.Events() {
//	    fmt.Printf("event: %s\n", event.Type)
//	}
//
// # Configuration
//
//	sc, err := client.NewStatusClient("http://localhost:8081",
//	    client.WithAPIKey("bearer-token"),
//	    client.WithTimeout(10*time.Second),
//	)
package client
