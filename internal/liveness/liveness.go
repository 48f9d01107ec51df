// Package liveness decides whether the reconstructed state reflects a session that is
// actually running. The upstream keeps sending heartbeats between sessions, so an open
// socket alone says nothing; every signal below is independently required.
package liveness

import (
	"time"

	"livetiming/internal/state"
)

// Defaults observed to work against the live feed
const (
	DefaultStalenessWindow = 30 * time.Second
	DefaultMinMessages     = 3
)

// Field names inspected by the heuristic
const (
	FieldHeartbeat     = state.HeartbeatField
	FieldSessionInfo   = "SessionInfo"
	FieldSessionData   = "SessionData"
	FieldSessionStatus = "SessionStatus"
	FieldTimingData    = "TimingData"
	FieldCarData       = "CarData"
	FieldPosition      = "Position"
)

var activeStatuses = map[string]struct{}{
	"Started": {},
	"Live":    {},
	"Active":  {},
}

type Thresholds struct {
	StalenessWindow time.Duration
	// MinMessages must be strictly exceeded
	MinMessages int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StalenessWindow: DefaultStalenessWindow,
		MinMessages:     DefaultMinMessages,
	}
}

// Report carries every signal that feeds the verdict
type Report struct {
	Active bool `json:"active"`

	Connected           bool          `json:"connected"`
	SinceLastUpdate     time.Duration `json:"since_last_update"`
	RecentData          bool          `json:"recent_data"`
	MeaningfulMessages  int           `json:"meaningful_messages"`
	EnoughMessages      bool          `json:"enough_messages"`
	HasHeartbeat        bool          `json:"has_heartbeat"`
	HasSessionIdentity  bool          `json:"has_session_identity"`
	SessionStatus       string        `json:"session_status,omitempty"`
	SessionStatusActive bool          `json:"session_status_active"`
	HasTimingData       bool          `json:"has_timing_data"`
	HasCarData          bool          `json:"has_car_data"`
	HasPosition         bool          `json:"has_position"`
}

// Evaluate computes each liveness signal for a snapshot at the given instant
func Evaluate(snap state.Snapshot, now time.Time, th Thresholds) Report {
	doc := snap.Document
	counters := snap.Counters

	r := Report{
		Connected:          counters.Connected,
		SinceLastUpdate:    now.Sub(counters.LastUpdate),
		MeaningfulMessages: counters.TotalMeaningfulMessages,
	}
	r.RecentData = r.SinceLastUpdate < th.StalenessWindow
	r.EnoughMessages = counters.TotalMeaningfulMessages > th.MinMessages
	r.HasHeartbeat = present(doc, FieldHeartbeat)
	r.HasSessionIdentity = present(doc, FieldSessionInfo) || present(doc, FieldSessionData)

	if sessionStatus, ok := doc.Get(FieldSessionStatus); ok {
		if status, ok := sessionStatus.Get("Status"); ok && status.Kind() == state.KindString {
			r.SessionStatus = status.StringValue()
			_, r.SessionStatusActive = activeStatuses[r.SessionStatus]
		}
	}
	if timing, ok := doc.Get(FieldTimingData); ok && timing.Truthy() {
		r.HasTimingData = timing.IsMapping() && timing.Len() > 0
	}
	r.HasCarData = present(doc, FieldCarData)
	r.HasPosition = present(doc, FieldPosition)

	r.Active = r.Connected &&
		r.RecentData &&
		r.EnoughMessages &&
		r.HasHeartbeat &&
		r.HasSessionIdentity &&
		(r.SessionStatusActive || r.HasTimingData || r.HasCarData || r.HasPosition)
	return r
}

// IsActiveSession reports whether the snapshot represents a live session
func IsActiveSession(snap state.Snapshot, now time.Time, th Thresholds) bool {
	return Evaluate(snap, now, th).Active
}

func present(doc state.Value, name string) bool {
	v, ok := doc.Get(name)
	return ok && v.Truthy()
}
