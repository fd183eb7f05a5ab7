// Package service executes one evidence collection run end to end.
//
// A Collector is built once per process from the configuration and an
// environment snapshot. Construction expands the snapshot into the run
// plan (see internal/expand); Do executes it.
//
// Data flow:
//
//	Collector                 runner.Runner           child process
//	    |                          |                       |
//	 Do()-- per instance --------->| Run() --------------->| os/exec with timeout
//	    |                          |<---- ExecutionResult--| (exit / kill)
//	    |-- correlate.Resolve per instance
//	    |-- summary build + Write (summary.json)
//	    |-- Uploader.Upload(summary bytes) for each configured sink
//
// Invariants:
//   - Each instance produces exactly one terminal ExecutionResult.
//   - An instance failure never aborts the run; there is no retry.
//   - The summary is built only after every instance is terminal.
//   - The evidence directory is append-only during the run; instance
//     output names never collide, so parallel workers need no locking.
//   - The run-level failure signal is model.ErrRunDegraded, raised only
//     for ERROR or TIMEOUT entries.
package service
