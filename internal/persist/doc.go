// Package persist stores small pieces of process state as JSON files in a
// data directory guarded by an OS-level lock.
//
// Writes go to a temp file in the same directory, are fsynced and then
// renamed over the target, so a crash leaves either the old or the new
// contents. A file that fails to parse is copied aside under a timestamped
// ".corrupt-" name and reported as empty; startup never fails on bad state.
package persist
