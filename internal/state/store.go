package state

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// HeartbeatField is the upstream keep-alive topic; it never counts as a meaningful message
const HeartbeatField = "Heartbeat"

// DefaultEmptyFrameThreshold is how many consecutive empty frames are tolerated before the
// document is dropped as stale
const DefaultEmptyFrameThreshold = 5

var (
	ErrStaleGeneration = errors.New("state: frame belongs to a superseded connection")
	ErrStoreStopped    = errors.New("state: store is not running")
)

// FieldUpdate is one decoded field/value pair ready to merge
type FieldUpdate struct {
	Name          string
	Value         Value
	WasCompressed bool
}

// Frame is the decoded form of one upstream frame
type Frame struct {
	Empty    bool // the frame was an empty JSON object
	Snapshot bool // the updates come from a full refresh rather than incremental feed
	Updates  []FieldUpdate
}

// Counters travel with the document and are reset together with it
type Counters struct {
	TotalMeaningfulMessages int       `json:"total_meaningful_messages"`
	ConsecutiveEmptyFrames  int       `json:"consecutive_empty_frames"`
	LastUpdate              time.Time `json:"last_update"`
	Connected               bool      `json:"connected"`
	Generation              uint64    `json:"generation"`
}

// Snapshot is an independent copy of the document plus its counters
type Snapshot struct {
	Document Value
	Counters Counters
}

type Options struct {
	// EmptyFrameThreshold > 0 enables the stale-data guard: once more than this many
	// consecutive empty frames arrive the document and message counters are cleared.
	EmptyFrameThreshold int
	Now                 func() time.Time
	Logger              *slog.Logger
}

type command struct {
	run   func() error
	reply chan error
}

// Store owns the single merged state document. All mutations are funneled through
// Run's goroutine in arrival order; readers only ever see published immutable views.
type Store struct {
	opts Options
	cmds chan command
	done chan struct{}
	view atomic.Pointer[Snapshot]

	// owned by the Run goroutine
	doc      Value
	counters Counters
}

func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		opts: opts,
		cmds: make(chan command),
		done: make(chan struct{}),
		doc:  EmptyDocument(),
	}
	s.publish()
	return s
}

// Run processes commands until ctx is cancelled
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			err := cmd.run()
			s.publish()
			cmd.reply <- err
		}
	}
}

// Done is closed once Run has returned
func (s *Store) Done() <-chan struct{} { return s.done }

func (s *Store) submit(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{run: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreStopped
	}
	return <-reply
}

// Open starts a fresh connection generation: the document is cleared, counters zeroed
// and frames from any other generation are refused from now on.
func (s *Store) Open(ctx context.Context, generation uint64) error {
	return s.submit(ctx, func() error {
		s.reset()
		s.counters.Generation = generation
		s.counters.Connected = true
		s.opts.Logger.Info("state_generation_opened", "generation", generation)
		return nil
	})
}

// Disconnect clears the document for a closed connection. A generation that has already
// been superseded leaves the newer state untouched.
func (s *Store) Disconnect(ctx context.Context, generation uint64) error {
	return s.submit(ctx, func() error {
		if generation != s.counters.Generation {
			return ErrStaleGeneration
		}
		s.reset()
		s.counters.Generation = generation
		return nil
	})
}

// Reset replaces the document with an empty mapping and zeroes every counter
func (s *Store) Reset(ctx context.Context) error {
	return s.submit(ctx, func() error {
		generation := s.counters.Generation
		s.reset()
		s.counters.Generation = generation
		return nil
	})
}

// Apply merges a single field update
func (s *Store) Apply(ctx context.Context, generation uint64, update FieldUpdate) error {
	return s.ApplyFrame(ctx, generation, Frame{Updates: []FieldUpdate{update}})
}

// ApplyFrame merges every update of a decoded frame and maintains the counters
func (s *Store) ApplyFrame(ctx context.Context, generation uint64, frame Frame) error {
	return s.submit(ctx, func() error {
		if generation != s.counters.Generation {
			return ErrStaleGeneration
		}

		if frame.Empty {
			s.counters.ConsecutiveEmptyFrames++
			threshold := s.opts.EmptyFrameThreshold
			if threshold > 0 && s.counters.ConsecutiveEmptyFrames > threshold {
				s.opts.Logger.Warn("state_reset_empty_frames",
					"generation", generation,
					"empty_frames", s.counters.ConsecutiveEmptyFrames,
				)
				// not reset(): the session is still open, so Connected and Generation stay, and the
				// empty-frame count keeps growing until a non-empty frame arrives
				s.doc = EmptyDocument()
				s.counters.TotalMeaningfulMessages = 0
				s.counters.LastUpdate = time.Time{}
			}
			return nil
		}

		s.counters.ConsecutiveEmptyFrames = 0
		s.counters.LastUpdate = s.opts.Now()

		if frame.Snapshot && len(frame.Updates) > 0 {
			s.counters.TotalMeaningfulMessages++
		}
		for _, update := range frame.Updates {
			if !frame.Snapshot && update.Name != HeartbeatField {
				s.counters.TotalMeaningfulMessages++
			}
			s.doc = MergeField(s.doc, update.Name, update.Value)
		}
		return nil
	})
}

// Snapshot returns a deep copy of the latest published document and its counters.
// It never waits on the writer.
func (s *Store) Snapshot() Snapshot {
	view := s.view.Load()
	return Snapshot{
		Document: view.Document.Clone(),
		Counters: view.Counters,
	}
}

func (s *Store) reset() {
	s.doc = EmptyDocument()
	s.counters = Counters{}
}

// publish exposes the current document. Merges never mutate a published tree,
// so sharing the root here is safe.
func (s *Store) publish() {
	s.view.Store(&Snapshot{Document: s.doc, Counters: s.counters})
}
