// Package file provides the monitor output: every record batch published on
// the monitor subject is appended, one record per line, to a JSON Lines file
// that rotates by UTC date.
//
// Files are named
//
//	<directory>/<file_prefix>-YYYYMMDD.jsonl
//
// Writes are buffered and flushed when the buffer fills, on every
// flush_interval tick, and on Stop. A batch that cannot be split into
// records is written as a single line so the monitor copy stays complete.
//
// The directory is an exclusive resource: two file outputs pointing at the
// same directory are rejected by the component registry.
package file
