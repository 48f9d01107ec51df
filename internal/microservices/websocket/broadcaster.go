package websocket

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"livetiming/internal/liveness"
	"livetiming/internal/state"
)

const (
	DefaultBroadcastInterval = time.Second
	mirrorTimeout            = 3 * time.Second
)

// inactivePayload tells subscribers there is no live session
var inactivePayload = []byte(`{}`)

// SnapshotSource is the read side of the state store
type SnapshotSource interface {
	Snapshot() state.Snapshot
}

// Mirror receives every broadcast payload off the tick path
type Mirror interface {
	MirrorState(ctx context.Context, payload []byte, active bool) error
}

type BroadcasterConfig struct {
	Interval   time.Duration
	Thresholds liveness.Thresholds
	// SendInactiveState sends a non-empty document even when the session looks inactive (development)
	SendInactiveState bool
	Mirror            Mirror
	Logger            *slog.Logger
}

// Broadcaster pushes the current document, or {} when no session is live, to every subscriber
// once per interval
type Broadcaster struct {
	hub          *Hub
	source       SnapshotSource
	interval     time.Duration
	thresholds   liveness.Thresholds
	sendInactive bool
	mirror       Mirror
	logger       *slog.Logger

	mirroring atomic.Bool
	mirrorWG  sync.WaitGroup
	ticks     atomic.Uint64
	active    atomic.Bool
}

func NewBroadcaster(hub *Hub, source SnapshotSource, cfg BroadcasterConfig) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBroadcastInterval
	}
	if cfg.Thresholds == (liveness.Thresholds{}) {
		cfg.Thresholds = liveness.DefaultThresholds()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Broadcaster{
		hub:          hub,
		source:       source,
		interval:     cfg.Interval,
		thresholds:   cfg.Thresholds,
		sendInactive: cfg.SendInactiveState,
		mirror:       cfg.Mirror,
		logger:       cfg.Logger,
	}
}

// Ticks counts completed broadcast ticks
func (b *Broadcaster) Ticks() uint64 { return b.ticks.Load() }

// Active reports the verdict of the most recent tick
func (b *Broadcaster) Active() bool { return b.active.Load() }

// Run broadcasts every interval until ctx is cancelled, then waits for in-flight mirror writes
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer b.mirrorWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.Tick(ctx, now)
		}
	}
}

// Tick evaluates the current snapshot and fans the payload out to every subscriber.
// It returns the payload that was sent.
func (b *Broadcaster) Tick(ctx context.Context, now time.Time) []byte {
	snap := b.source.Snapshot()
	report := liveness.Evaluate(snap, now, b.thresholds)
	b.active.Store(report.Active)
	b.ticks.Add(1)

	payload := inactivePayload
	switch {
	case report.Active:
		payload = b.encode(snap.Document)
	case b.sendInactive && snap.Document.Len() > 0:
		b.logger.Debug("inactive_state_sent",
			"connected", report.Connected,
			"recent_data", report.RecentData,
			"meaningful_messages", report.MeaningfulMessages,
			"has_heartbeat", report.HasHeartbeat,
			"has_session_identity", report.HasSessionIdentity,
			"session_status", report.SessionStatus,
			"has_timing_data", report.HasTimingData,
			"has_car_data", report.HasCarData,
			"has_position", report.HasPosition,
		)
		payload = b.encode(snap.Document)
	}

	b.fanOut(payload)
	b.mirrorAsync(ctx, payload, report.Active)
	return payload
}

func (b *Broadcaster) encode(doc state.Value) []byte {
	data, err := doc.MarshalJSON()
	if err != nil {
		b.logger.Error("state_encode_failed", "error", err.Error())
		return inactivePayload
	}
	return data
}

// fanOut enqueues payload on every client. Slow or closed clients are dropped; the others
// are unaffected.
func (b *Broadcaster) fanOut(payload []byte) {
	for _, client := range b.hub.Clients() {
		if err := client.Send(payload); err != nil {
			b.logger.Warn("subscriber_dropped",
				"client_id", client.ID,
				"error", err.Error(),
			)
			b.hub.Unregister(client)
		}
	}
}

// mirrorAsync hands the payload to the mirror unless the previous write is still running
func (b *Broadcaster) mirrorAsync(ctx context.Context, payload []byte, active bool) {
	if b.mirror == nil || !b.mirroring.CompareAndSwap(false, true) {
		return
	}
	b.mirrorWG.Add(1)
	go func() {
		defer b.mirrorWG.Done()
		defer b.mirroring.Store(false)

		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		if err := b.mirror.MirrorState(mctx, payload, active); err != nil {
			b.logger.Warn("state_mirror_failed", "error", err.Error())
		}
	}()
}
