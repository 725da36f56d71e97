// Package pipeline implements the asynchronous detection→maturation
// processing orchestrator. A caller starts a run and immediately receives
// an opaque run ID; the pipeline then executes out-of-band, persisting its
// progress to a status record that callers poll.
//
// The background task is the sole writer of a run's status record, so
// updates within one run are strictly sequential. Status writes are plain
// read-modify-write cycles with no version check; the single-writer
// discipline is what makes that safe.
package pipeline
