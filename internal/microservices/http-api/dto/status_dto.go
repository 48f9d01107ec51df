package dto

import (
	"time"

	"livetiming/internal/liveness"
	"livetiming/internal/state"
)

// DTOs for the relay status endpoints

type UpstreamStatus struct {
	State          string `json:"state"`
	Generation     uint64 `json:"generation"`
	FramesReceived uint64 `json:"frames_received"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

type LivenessResponse struct {
	liveness.Report
	SinceLastUpdate string `json:"since_last_update"`
}

type StatusResponse struct {
	Upstream    UpstreamStatus   `json:"upstream"`
	Counters    state.Counters   `json:"counters"`
	Liveness    LivenessResponse `json:"liveness"`
	Fields      []string         `json:"fields"`
	Subscribers int              `json:"subscribers"`
	ServerTime  string           `json:"server_time"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// LivenessFromReport renders durations as text; a document that never updated has no age
func LivenessFromReport(r liveness.Report, lastUpdate time.Time) LivenessResponse {
	resp := LivenessResponse{Report: r}
	if !lastUpdate.IsZero() {
		resp.SinceLastUpdate = r.SinceLastUpdate.Round(time.Millisecond).String()
	}
	return resp
}
