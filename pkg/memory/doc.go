// Package memory persists small structured documents as one markdown file
// each and keeps a derived SQLite FTS5 search index causally consistent
// with them.
//
// Invariants:
// - A document's identifier never changes once assigned.
// - A link edge recorded on one document is mirrored on its counterpart,
//   except during the window between an external edit and a repair pass.
// - At most one live index handle exists per store configuration, and at
//   most one rebuild is in flight per configuration at any time.
//
// Usage:
//
//	mgr := memory.NewManager(memory.ManagerConfig{Logger: logger})
//	defer mgr.Shutdown()
//	svc, _ := memory.NewService(memory.ServiceConfig{
//		Consistency: mgr,
//		Store:       memory.StoreConfig{StorePath: "/data/memory", IndexPath: "/data/index.db"},
//		Logger:      logger,
//	})
//	m, _ := svc.Create(ctx, memory.CreateRequest{Title: "Project Ideas", Body: "..."})
//	_ = m
package memory
