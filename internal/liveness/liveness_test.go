package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"livetiming/internal/state"
)

var testNow = time.Date(2026, 5, 24, 13, 30, 0, 0, time.UTC)

func liveSnapshot(messages int) state.Snapshot {
	return state.Snapshot{
		Document: state.MustParseJSON(`{
			"Heartbeat": {"Utc": "2026-05-24T13:29:59Z"},
			"SessionInfo": {"Name": "Race", "Type": "Race"},
			"SessionStatus": {"Status": "Started"}
		}`),
		Counters: state.Counters{
			TotalMeaningfulMessages: messages,
			LastUpdate:              testNow.Add(-2 * time.Second),
			Connected:               true,
			Generation:              1,
		},
	}
}

func TestIsActiveSession_MessageThreshold(t *testing.T) {
	th := DefaultThresholds()

	assert.False(t, IsActiveSession(liveSnapshot(2), testNow, th))
	assert.False(t, IsActiveSession(liveSnapshot(3), testNow, th), "threshold is strict")
	assert.True(t, IsActiveSession(liveSnapshot(4), testNow, th))
}

func TestIsActiveSession_EachSignalRequired(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name   string
		mutate func(s *state.Snapshot)
	}{
		{"disconnected", func(s *state.Snapshot) { s.Counters.Connected = false }},
		{"stale", func(s *state.Snapshot) { s.Counters.LastUpdate = testNow.Add(-30 * time.Second) }},
		{"never updated", func(s *state.Snapshot) { s.Counters.LastUpdate = time.Time{} }},
		{"no heartbeat", func(s *state.Snapshot) {
			s.Document = state.MustParseJSON(`{"SessionInfo":{"Name":"Race"},"SessionStatus":{"Status":"Started"}}`)
		}},
		{"no session identity", func(s *state.Snapshot) {
			s.Document = state.MustParseJSON(`{"Heartbeat":{},"SessionStatus":{"Status":"Started"}}`)
		}},
		{"no activity signal", func(s *state.Snapshot) {
			s.Document = state.MustParseJSON(`{"Heartbeat":{},"SessionInfo":{"Name":"Race"},"SessionStatus":{"Status":"Finalised"}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := liveSnapshot(10)
			tt.mutate(&snap)
			assert.False(t, IsActiveSession(snap, testNow, th))
		})
	}
}

func TestIsActiveSession_AlternativeSignals(t *testing.T) {
	th := DefaultThresholds()

	docs := map[string]string{
		"session data":  `{"Heartbeat":{},"SessionData":{"Series":[]},"SessionStatus":{"Status":"Live"}}`,
		"status active": `{"Heartbeat":{},"SessionInfo":{},"SessionStatus":{"Status":"Active"}}`,
		"timing data":   `{"Heartbeat":{},"SessionInfo":{},"TimingData":{"Lines":{}}}`,
		"car data":      `{"Heartbeat":{},"SessionInfo":{},"CarData":{"Entries":[]}}`,
		"position":      `{"Heartbeat":{},"SessionInfo":{},"Position":{"Position":[]}}`,
	}
	for name, raw := range docs {
		t.Run(name, func(t *testing.T) {
			snap := liveSnapshot(10)
			snap.Document = state.MustParseJSON(raw)
			assert.True(t, IsActiveSession(snap, testNow, th))
		})
	}
}

func TestEvaluate_EmptyTimingDataIsNotActivity(t *testing.T) {
	snap := liveSnapshot(10)
	snap.Document = state.MustParseJSON(`{"Heartbeat":{},"SessionInfo":{},"TimingData":{}}`)

	report := Evaluate(snap, testNow, DefaultThresholds())
	assert.False(t, report.HasTimingData)
	assert.False(t, report.Active)
}

func TestEvaluate_ReportsSignals(t *testing.T) {
	report := Evaluate(liveSnapshot(5), testNow, DefaultThresholds())

	assert.True(t, report.Active)
	assert.Equal(t, "Started", report.SessionStatus)
	assert.True(t, report.SessionStatusActive)
	assert.Equal(t, 2*time.Second, report.SinceLastUpdate)
	assert.Equal(t, 5, report.MeaningfulMessages)
}

func TestIsActiveSession_CustomThresholds(t *testing.T) {
	th := Thresholds{StalenessWindow: time.Second, MinMessages: 0}

	assert.False(t, IsActiveSession(liveSnapshot(1), testNow, th), "2s old data exceeds 1s window")

	snap := liveSnapshot(1)
	snap.Counters.LastUpdate = testNow.Add(-500 * time.Millisecond)
	assert.True(t, IsActiveSession(snap, testNow, th))
}
