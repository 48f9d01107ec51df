package signalr

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"livetiming/internal/state"
)

// DefaultRetryDelay is the fixed pause between connection attempts
const DefaultRetryDelay = 10 * time.Second

// ConnState is the supervisor's view of the upstream connection
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateNegotiating
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Upstream is the part of Client the supervisor drives
type Upstream interface {
	Negotiate(ctx context.Context) (Session, error)
	Stream(ctx context.Context, session Session, generation uint64, handler StreamHandler) error
}

type SupervisorConfig struct {
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Supervisor keeps one upstream connection alive:
// Disconnected -> Negotiating -> Connected -> Disconnected, with a fixed retry delay.
// Entering Disconnected always clears the store.
type Supervisor struct {
	upstream   Upstream
	decoder    *Decoder
	store      *state.Store
	retryDelay time.Duration
	logger     *slog.Logger

	state      atomic.Int32
	generation atomic.Uint64
	frames     atomic.Uint64
	dropped    atomic.Uint64
}

func NewSupervisor(upstream Upstream, decoder *Decoder, store *state.Store, cfg SupervisorConfig) *Supervisor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		upstream:   upstream,
		decoder:    decoder,
		store:      store,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// State returns the current connection state
func (s *Supervisor) State() ConnState { return ConnState(s.state.Load()) }

// Generation returns the id of the most recent connection attempt
func (s *Supervisor) Generation() uint64 { return s.generation.Load() }

// FramesReceived counts every frame handed over by the upstream
func (s *Supervisor) FramesReceived() uint64 { return s.frames.Load() }

// FramesDropped counts frames that failed to decode or arrived for a superseded connection
func (s *Supervisor) FramesDropped() uint64 { return s.dropped.Load() }

func (s *Supervisor) setState(next ConnState) {
	prev := ConnState(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Info("upstream_state_changed", "from", prev.String(), "to", next.String())
	}
}

// Run drives the connection loop until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	s.disconnected(ctx, 0)

	for {
		s.setState(StateNegotiating)
		session, err := s.upstream.Negotiate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("upstream_negotiation_failed",
				"error", err.Error(),
				"retry_in", s.retryDelay.String(),
			)
			s.disconnected(ctx, 0)
		} else {
			generation := s.generation.Add(1)
			err = s.upstream.Stream(ctx, session, generation, s)
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return ctx.Err()
			}
			s.logger.Warn("upstream_connection_lost",
				"generation", generation,
				"error", errString(err),
				"retry_in", s.retryDelay.String(),
			)
			s.disconnected(ctx, generation)
		}

		timer := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// disconnected enters the Disconnected state and clears the store
func (s *Supervisor) disconnected(ctx context.Context, generation uint64) {
	defer s.setState(StateDisconnected)

	err := s.store.Disconnect(ctx, generation)
	if errors.Is(err, state.ErrStaleGeneration) {
		// the connection never opened, so the store still holds an older generation
		err = s.store.Reset(ctx)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("state_reset_failed", "generation", generation, "error", err.Error())
	}
}

// OnOpen implements StreamHandler
func (s *Supervisor) OnOpen(ctx context.Context, generation uint64) error {
	if err := s.store.Open(ctx, generation); err != nil {
		return err
	}
	s.setState(StateConnected)
	return nil
}

// OnFrame implements StreamHandler
func (s *Supervisor) OnFrame(ctx context.Context, raw RawFrame) {
	s.frames.Add(1)

	frame, err := s.decoder.Decode(raw.Data)
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("frame_dropped",
			"generation", raw.Generation,
			"size", len(raw.Data),
			"error", err.Error(),
		)
		return
	}

	if err := s.store.ApplyFrame(ctx, raw.Generation, frame); err != nil {
		if errors.Is(err, state.ErrStaleGeneration) {
			s.dropped.Add(1)
			s.logger.Debug("stale_frame_discarded", "generation", raw.Generation)
			return
		}
		if ctx.Err() == nil {
			s.logger.Error("frame_apply_failed", "generation", raw.Generation, "error", err.Error())
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "stream closed"
	}
	return err.Error()
}
