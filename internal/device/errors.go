package device

import "fmt"

// ConnectionError reports that no recorder was attached when Op ran.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnreachableError reports that Op failed on every retry attempt.
type UnreachableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: repeated attempts failed (%d attempts): %v", e.Op, e.Attempts, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }
