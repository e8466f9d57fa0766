// Package observer records multiplexer draw statistics in a SQLite run ledger.
//
//   - Ledger: a stream.Observer that counts, per (mux, source), how many entries were
//     drawn and how often the input was opened and exhausted. Counts are kept in memory
//     and written to mix_run_source by Flush.
//   - StartRun starts a run (mix_run row with a uuid run id, name and seed) and resets the
//     counters; FinishRun flushes and stamps finished_at.
//   - Runs and SourceStats read the ledger back, e.g. to compare the realized mix of a
//     run with the configured weights.
//
// The ledger is safe for concurrent use, so one Ledger can observe every worker of a
// sampling job. Open creates the schema on first use and rejects a database written by
// a different schema version.
package observer
