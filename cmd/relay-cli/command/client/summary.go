package client

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Summary is the one-line view of a broadcast payload
type Summary struct {
	Live          bool
	Fields        int
	SessionName   string
	SessionStatus string
	Lap           string
	TrackStatus   string
}

// Summarize reads the handful of fields a human watching the stream cares about.
// An empty object means the relay has no live session.
func Summarize(payload []byte) (Summary, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Summary{}, fmt.Errorf("decode payload: %w", err)
	}

	s := Summary{Live: len(doc) > 0, Fields: len(doc)}
	if !s.Live {
		return s, nil
	}

	var info struct {
		Name    string `json:"Name"`
		Meeting struct {
			Name string `json:"Name"`
		} `json:"Meeting"`
	}
	if decodeField(doc, "SessionInfo", &info) {
		s.SessionName = info.Name
		if info.Meeting.Name != "" {
			s.SessionName = info.Meeting.Name + " - " + info.Name
		}
	}

	var status struct {
		Status string `json:"Status"`
	}
	if decodeField(doc, "SessionStatus", &status) {
		s.SessionStatus = status.Status
	}

	var lap struct {
		CurrentLap *int `json:"CurrentLap"`
		TotalLaps  *int `json:"TotalLaps"`
	}
	if decodeField(doc, "LapCount", &lap) && lap.CurrentLap != nil {
		s.Lap = fmt.Sprintf("%d", *lap.CurrentLap)
		if lap.TotalLaps != nil {
			s.Lap += fmt.Sprintf("/%d", *lap.TotalLaps)
		}
	}

	var track struct {
		Message string `json:"Message"`
	}
	if decodeField(doc, "TrackStatus", &track) {
		s.TrackStatus = track.Message
	}
	return s, nil
}

func decodeField(doc map[string]json.RawMessage, name string, target any) bool {
	raw, ok := doc[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

// FieldNames lists the top-level fields of a payload in order
func FieldNames(payload []byte) ([]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
