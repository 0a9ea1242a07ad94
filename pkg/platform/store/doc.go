// Package store persists events appended through pkg/platform/event.
//
// MemoryEventStore keeps one stream per producer-assigned stream id
// (the "stream_id" tag, or DefaultStreamID), each under its own lock,
// so appends to unrelated streams never contend. A global sequence
// counter orders events across streams for Query and
// GetByCorrelation.
//
//	s := store.NewMemoryEventStore()
//	stored, _ := s.Append(ctx, evt)
//	page, _ := s.Query(ctx, store.EventQuery{TypePattern: "user.*", Limit: 50})
//	next, _ := s.Query(ctx, store.EventQuery{TypePattern: "user.*", Cursor: page.NextCursor})
package store
