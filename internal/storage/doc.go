// Package storage persists the component snapshot and the run watermark
// between relay runs.
//
// Drivers:
//   - file: a single JSON document, rewritten atomically on Flush
//   - sqlite: a SQLite database (modernc.org/sqlite), write-through
//   - redis: a hash plus a watermark key, write-through
package storage
