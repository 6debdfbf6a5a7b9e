package gazette

import "fmt"

// Collaborator names used in CollaboratorError.
const (
	CollaboratorWatchlist = "watchlist"
	CollaboratorCrawl     = "crawl"
	CollaboratorNotify    = "notify"
)

// ConfigurationError reports a missing or malformed input that prevents a run from starting.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CollaboratorError wraps a failure from an external collaborator (crawl, notify, watch-list).
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// PersistenceError reports a ledger write that could not be committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
