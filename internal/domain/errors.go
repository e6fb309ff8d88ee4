package domain

import "fmt"

// MalformedRecordError marks an analytics record that matched a playable URL
// label but is missing a required field or carries a non-numeric counter.
// It indicates an incompatible upstream schema change and aborts the run.
type MalformedRecordError struct {
	Raw string
	Err error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed analytics record %q: %v", truncate(e.Raw), e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// MalformedResponseError marks a 2xx response whose body could not be
// decoded against the expected schema.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response body %q: %v", truncate(e.Body), e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RemoteServiceError marks a non-2xx, non-404 status from one of the two
// upstream APIs.
type RemoteServiceError struct {
	Service string
	Status  int
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Status)
}

// CorruptStoredSegmentsError marks an unparseable segments payload read back
// from the metrics store. Fatal: overwriting it would silently drop
// historical data.
type CorruptStoredSegmentsError struct {
	EpisodeID string
	Err       error
}

func (e *CorruptStoredSegmentsError) Error() string {
	return fmt.Sprintf("stored segments for episode %s are corrupt: %v", e.EpisodeID, e.Err)
}

func (e *CorruptStoredSegmentsError) Unwrap() error { return e.Err }

// StoreUnavailableError marks a connectivity or ping failure against the
// metrics store.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("metrics store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func truncate(s string) string {
	const max = 120
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
