// Package session persists conversation documents.
//
// A document is the JSON object {"history": [...], "timestamp": "..."},
// written with two-space indentation. The timestamp uses the layout
// "2006-01-02 15:04:05.000000" in local time.
//
// Available stores:
//   - [FileStore] reads and writes documents as files on disk.
//   - [MemoryStore] keeps documents in memory (useful for testing).
package session
