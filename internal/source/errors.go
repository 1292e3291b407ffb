package source

import "fmt"

// ConnectionError covers every way a request to the legacy API can fail:
// transport errors, timeouts, non-2xx responses and undecodable bodies.
type ConnectionError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
