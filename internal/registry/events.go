// Package registry: outbound state-change notification contract.
package registry

import (
	"context"
	"time"
)

type (
	// StateChangeEvent describes one committed lifecycle transition
	// (including creation in UNPUBLISHED state).
	StateChangeEvent struct {
		StudyID    string
		AnalysisID string
		State      AnalysisState
		OccurredAt time.Time
	}

	// EventPublisher notifies downstream consumers of committed state
	// changes. Publishing is best-effort: the transition has already
	// committed, so implementations' failures are logged by callers and
	// never surfaced to the client.
	EventPublisher interface {
		PublishStateChange(ctx context.Context, event StateChangeEvent) error
	}
)
