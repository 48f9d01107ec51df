package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"livetiming/internal/ingestion/signalr"
	"livetiming/internal/liveness"
	"livetiming/internal/microservices/http-api/dto"
	"livetiming/internal/state"
)

// UpstreamMonitor exposes the supervisor's connection bookkeeping
type UpstreamMonitor interface {
	State() signalr.ConnState
	Generation() uint64
	FramesReceived() uint64
	FramesDropped() uint64
}

type SnapshotSource interface {
	Snapshot() state.Snapshot
}

type SubscriberCounter interface {
	Count() int
}

// MirrorReader reads the last payload the broadcaster mirrored to shared storage
type MirrorReader interface {
	GetState(ctx context.Context) ([]byte, bool, error)
}

const mirrorReadTimeout = 3 * time.Second

type StatusHandler struct {
	upstream    UpstreamMonitor
	source      SnapshotSource
	subscribers SubscriberCounter
	thresholds  liveness.Thresholds
	mirror      MirrorReader
	now         func() time.Time
}

func NewStatusHandler(upstream UpstreamMonitor, source SnapshotSource, subscribers SubscriberCounter, thresholds liveness.Thresholds) *StatusHandler {
	return &StatusHandler{
		upstream:    upstream,
		source:      source,
		subscribers: subscribers,
		thresholds:  thresholds,
		now:         time.Now,
	}
}

// WithMirror enables GET /api/state?source=mirror
func (h *StatusHandler) WithMirror(mirror MirrorReader) *StatusHandler {
	h.mirror = mirror
	return h
}

func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.GET("/state", h.State)
}

// Health: GET /healthz
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Status: GET /api/status
func (h *StatusHandler) Status(c *gin.Context) {
	now := h.now()
	snap := h.source.Snapshot()
	report := liveness.Evaluate(snap, now, h.thresholds)

	c.JSON(http.StatusOK, dto.StatusResponse{
		Upstream: dto.UpstreamStatus{
			State:          h.upstream.State().String(),
			Generation:     h.upstream.Generation(),
			FramesReceived: h.upstream.FramesReceived(),
			FramesDropped:  h.upstream.FramesDropped(),
		},
		Counters:    snap.Counters,
		Liveness:    dto.LivenessFromReport(report, snap.Counters.LastUpdate),
		Fields:      snap.Document.Keys(),
		Subscribers: h.subscribers.Count(),
		ServerTime:  now.UTC().Format(time.RFC3339),
	})
}

// State: GET /api/state, the full document whether or not a session is live.
// With ?source=mirror it returns the last payload stored in the mirror instead.
func (h *StatusHandler) State(c *gin.Context) {
	if c.Query("source") == "mirror" {
		h.mirrorState(c)
		return
	}

	data, err := h.source.Snapshot().Document.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *StatusHandler) mirrorState(c *gin.Context) {
	if h.mirror == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "state mirror not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), mirrorReadTimeout)
	defer cancel()

	payload, active, err := h.mirror.GetState(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read state mirror"})
		return
	}
	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no mirrored state"})
		return
	}
	c.Header("X-Session-Active", strconv.FormatBool(active))
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}
