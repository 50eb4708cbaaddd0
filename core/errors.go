package core

import "fmt"

// SourceUnavailableError reports a source call that kept failing after the
// retry budget was spent.
type SourceUnavailableError struct {
	Source    string
	Operation string
	PackageID string
	Attempts  int
	Err       error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("failed to retrieve information about '%s' from source '%s' (%s, %d attempt(s)): %v",
		e.PackageID, e.Source, e.Operation, e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}
