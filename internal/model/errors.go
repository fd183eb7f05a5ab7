package model

import (
	"errors"
)

var (
	// ErrDuplicateVariable reports an environment snapshot carrying the
	// same variable name twice. Duplicates are rejected at load time
	// instead of resolving by iteration order.
	ErrDuplicateVariable = errors.New("duplicate environment variable")

	// ErrRunDegraded reports a run in which at least one instance ended
	// in ERROR or TIMEOUT. FAIL alone does not degrade the run.
	ErrRunDegraded = errors.New("one or more fetchers did not execute")
)
