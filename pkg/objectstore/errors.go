package objectstore

import "fmt"

// BackendError reports an unexpected HTTP status from the remote backend —
// anything other than 200 (success) or 404 (mapped to [ErrNotFound]).
type BackendError struct {
	URL        string
	StatusCode int
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("objectstore: unexpected response %d from %s", e.StatusCode, e.URL)
}
