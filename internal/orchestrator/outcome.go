package orchestrator

import (
	"time"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// Kind classifies how a run ended.
type Kind int

// Outcome kinds.
const (
	NoMatches Kind = iota
	MatchesFound
	Failed
	Skipped
)

func (k Kind) String() string {
	switch k {
	case NoMatches:
		return "no_matches"
	case MatchesFound:
		return "matches_found"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Process exit codes.
const (
	ExitNoMatches    = 0
	ExitMatchesFound = 1
	ExitFailed       = 2
	ExitSkipped      = 3
)

// Outcome is the result of one orchestrator invocation.
type Outcome struct {
	Kind     Kind
	RunID    string
	Matches  []gazette.Match
	Err      error
	Duration time.Duration
}

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case NoMatches:
		return ExitNoMatches
	case MatchesFound:
		return ExitMatchesFound
	case Skipped:
		return ExitSkipped
	default:
		return ExitFailed
	}
}
