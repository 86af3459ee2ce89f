package projections

import (
	"time"

	"github.com/wms-platform/stock-ledger-service/internal/domain"
)

const maxReportedMalformed = 100

// RebuildStatus is the outcome of a rebuild
type RebuildStatus string

const (
	RebuildCompleted             RebuildStatus = "completed"
	RebuildCompletedWithWarnings RebuildStatus = "completed_with_warnings"
	RebuildFailed                RebuildStatus = "failed"
)

// MalformedEvent identifies an event a projection skipped
type MalformedEvent struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Sequence  uint64 `json:"sequence"`
	Reason    string `json:"reason"`
}

// RebuildReport summarises one rebuild or catch-up run
type RebuildReport struct {
	Projection      string           `json:"projection"`
	Mode            Mode             `json:"mode"`
	Status          RebuildStatus    `json:"status"`
	FromSequence    uint64           `json:"fromSequence"`
	ToSequence      uint64           `json:"toSequence"`
	Applied         int              `json:"applied"`
	Duplicates      int              `json:"duplicates"`
	Malformed       int              `json:"malformed"`
	MalformedEvents []MalformedEvent `json:"malformedEvents,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     time.Time        `json:"completedAt"`
	Error           string           `json:"error,omitempty"`
}

func newRebuildReport(projection string, mode Mode) *RebuildReport {
	return &RebuildReport{
		Projection: projection,
		Mode:       mode,
		StartedAt:  time.Now().UTC(),
	}
}

// addMalformed counts every skipped event but keeps details for the first few only
func (r *RebuildReport) addMalformed(env *domain.Envelope, err error) {
	r.Malformed++
	if len(r.MalformedEvents) >= maxReportedMalformed {
		return
	}
	r.MalformedEvents = append(r.MalformedEvents, MalformedEvent{
		EventID:   env.EventID,
		EventType: env.EventType,
		Sequence:  env.Sequence,
		Reason:    err.Error(),
	})
}

func (r *RebuildReport) finish(err error) {
	r.CompletedAt = time.Now().UTC()
	switch {
	case err != nil:
		r.Status = RebuildFailed
		r.Error = err.Error()
	case r.Malformed > 0:
		r.Status = RebuildCompletedWithWarnings
	default:
		r.Status = RebuildCompleted
	}
}
