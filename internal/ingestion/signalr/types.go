package signalr

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://livetiming.formula1.com/signalr"
	DefaultHub     = "Streaming"

	clientProtocol = "1.5"
	userAgent      = "BestHTTP"

	// CompressedSuffix marks topics whose payload is base64 raw-deflate JSON
	CompressedSuffix = ".z"

	// the subscribe request is invocation 1; its result carries the full snapshot
	subscribeInvocationID = 1
	snapshotResultID      = "1"

	feedMethod      = "feed"
	subscribeMethod = "Subscribe"
)

// DefaultTopics is every topic the relay subscribes to
var DefaultTopics = []string{
	"Heartbeat",
	"CarData.z",
	"Position.z",
	"ExtrapolatedClock",
	"TimingStats",
	"TimingAppData",
	"WeatherData",
	"TrackStatus",
	"DriverList",
	"RaceControlMessages",
	"SessionInfo",
	"SessionData",
	"SessionStatus",
	"LapCount",
	"TimingData",
	"TeamRadio",
	"ChampionshipPrediction",
}

var (
	ErrNegotiation = errors.New("signalr: negotiation failed")
	ErrConnection  = errors.New("signalr: connection failed")
	ErrDecode      = errors.New("signalr: decode failed")
)

// Session is what a successful negotiation hands to the stream
type Session struct {
	Cookie          string
	ConnectionToken string
}

// RawFrame is one websocket message as received, tagged with the connection that produced it
type RawFrame struct {
	Generation uint64
	Data       []byte
	ReceivedAt time.Time
}

type hubDescriptor struct {
	Name string `json:"name"`
}

type negotiateResponse struct {
	URL                     string  `json:"Url"`
	ConnectionToken         string  `json:"ConnectionToken"`
	ConnectionID            string  `json:"ConnectionId"`
	KeepAliveTimeout        float64 `json:"KeepAliveTimeout"`
	DisconnectTimeout       float64 `json:"DisconnectTimeout"`
	TryWebSockets           bool    `json:"TryWebSockets"`
	ProtocolVersion         string  `json:"ProtocolVersion"`
	TransportConnectTimeout float64 `json:"TransportConnectTimeout"`
}

// subscribeRequest is the hub invocation sent right after the socket opens
type subscribeRequest struct {
	Hub       string `json:"H"`
	Method    string `json:"M"`
	Arguments []any  `json:"A"`
	ID        int    `json:"I"`
}

func newSubscribeRequest(hub string, topics []string) subscribeRequest {
	return subscribeRequest{
		Hub:       hub,
		Method:    subscribeMethod,
		Arguments: []any{topics},
		ID:        subscribeInvocationID,
	}
}

// resultID normalises the I member of an invocation result; the server sends a string
// but a bare number is tolerated too
func resultID(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

// invocation is one hub method call inside the M array of a persistent-connection message
type invocation struct {
	Hub       string            `json:"H"`
	Method    string            `json:"M"`
	Arguments []json.RawMessage `json:"A"`
}
