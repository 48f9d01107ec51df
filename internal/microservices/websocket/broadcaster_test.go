package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"livetiming/internal/state"
)

var testNow = time.Date(2026, 5, 24, 13, 30, 0, 0, time.UTC)

const liveDocument = `{
	"Heartbeat": {"Utc": "2026-05-24T13:29:59Z"},
	"SessionInfo": {"Name": "Race"},
	"SessionStatus": {"Status": "Started"},
	"TimingData": {"Lines": {"1": {"Position": "1"}}}
}`

type fixedSource struct {
	mu   sync.Mutex
	snap state.Snapshot
}

func (s *fixedSource) Snapshot() state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fixedSource) set(snap state.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func liveSource() *fixedSource {
	return &fixedSource{snap: state.Snapshot{
		Document: state.MustParseJSON(liveDocument),
		Counters: state.Counters{
			TotalMeaningfulMessages: 10,
			LastUpdate:              testNow.Add(-time.Second),
			Connected:               true,
			Generation:              1,
		},
	}}
}

// MockMirror mocks the Mirror interface
type MockMirror struct {
	mock.Mock
	calls chan struct{}
}

func (m *MockMirror) MirrorState(ctx context.Context, payload []byte, active bool) error {
	args := m.Called(string(payload), active)
	defer func() { m.calls <- struct{}{} }()
	return args.Error(0)
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.SendChannel:
		return string(msg)
	default:
		t.Fatalf("client %s received nothing", c.ID)
		return ""
	}
}

func TestBroadcaster_InactiveSendsEmptyObject(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 1)
	hub.Register(client)

	source := &fixedSource{snap: state.Snapshot{Document: state.EmptyDocument()}}
	b := NewBroadcaster(hub, source, BroadcasterConfig{})

	payload := b.Tick(context.Background(), testNow)
	assert.Equal(t, "{}", string(payload))
	assert.Equal(t, "{}", receive(t, client))
	assert.False(t, b.Active())
	assert.Equal(t, uint64(1), b.Ticks())
}

func TestBroadcaster_ActiveSendsDocument(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 1)
	hub.Register(client)

	b := NewBroadcaster(hub, liveSource(), BroadcasterConfig{})

	b.Tick(context.Background(), testNow)
	assert.JSONEq(t, liveDocument, receive(t, client))
	assert.True(t, b.Active())
}

func TestBroadcaster_StaleDocumentWithheld(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 1)
	hub.Register(client)

	b := NewBroadcaster(hub, liveSource(), BroadcasterConfig{})

	b.Tick(context.Background(), testNow.Add(time.Minute))
	assert.Equal(t, "{}", receive(t, client))
}

func TestBroadcaster_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(nil)
	slow := NewClient("slow", nil, hub, 0) // nothing drains it
	fast := NewClient("fast", nil, hub, 1)
	hub.Register(slow)
	hub.Register(fast)

	source := liveSource()
	b := NewBroadcaster(hub, source, BroadcasterConfig{})

	done := make(chan struct{})
	go func() {
		b.Tick(context.Background(), testNow)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick blocked on a slow subscriber")
	}

	assert.JSONEq(t, liveDocument, receive(t, fast))
	assert.True(t, slow.Closed())
	assert.False(t, fast.Closed())
	assert.Equal(t, 1, hub.Count())

	// later ticks keep reaching the healthy subscriber with each tick's document
	for lap := 2; lap <= 3; lap++ {
		snap := source.Snapshot()
		snap.Document = state.MergeField(snap.Document, "LapCount",
			state.MustParseJSON(fmt.Sprintf(`{"CurrentLap":%d}`, lap)))
		source.set(snap)

		b.Tick(context.Background(), testNow)
		got := state.MustParseJSON(receive(t, fast))
		lapCount, ok := got.Get("LapCount")
		require.True(t, ok, "tick %d", lap)
		assert.True(t, lapCount.Equal(state.MustParseJSON(fmt.Sprintf(`{"CurrentLap":%d}`, lap))), "tick %d", lap)
	}
	assert.Equal(t, 1, hub.Count())
}

func TestBroadcaster_LeftoverSessionSendsEmptyObject(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 1)
	hub.Register(client)

	// between sessions: heartbeats keep landing on the previous session's info
	source := &fixedSource{snap: state.Snapshot{
		Document: state.MustParseJSON(`{
			"Heartbeat": {"Utc": "2026-05-24T13:29:59Z"},
			"SessionInfo": {"Name": "Old Race"}
		}`),
		Counters: state.Counters{Connected: true, Generation: 2, LastUpdate: testNow},
	}}
	b := NewBroadcaster(hub, source, BroadcasterConfig{})

	assert.Equal(t, "{}", string(b.Tick(context.Background(), testNow)))
	assert.Equal(t, "{}", receive(t, client))
}

func TestBroadcaster_ClosedSubscriberRemoved(t *testing.T) {
	hub := NewHub(nil)
	gone := NewClient("gone", nil, hub, 1)
	hub.Register(gone)
	gone.Close()

	b := NewBroadcaster(hub, liveSource(), BroadcasterConfig{})
	b.Tick(context.Background(), testNow)

	assert.Zero(t, hub.Count())
}

func TestBroadcaster_PayloadsKeepTickOrder(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 2)
	hub.Register(client)

	source := liveSource()
	b := NewBroadcaster(hub, source, BroadcasterConfig{})

	b.Tick(context.Background(), testNow)
	source.mu.Lock()
	source.snap.Counters.Connected = false
	source.mu.Unlock()
	b.Tick(context.Background(), testNow)

	assert.JSONEq(t, liveDocument, receive(t, client))
	assert.Equal(t, "{}", receive(t, client))
}

func TestBroadcaster_SendInactiveState(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient("a", nil, hub, 2)
	hub.Register(client)

	source := &fixedSource{snap: state.Snapshot{
		Document: state.MustParseJSON(`{"Heartbeat":{"Utc":"2026-05-24T13:29:59Z"}}`),
	}}
	b := NewBroadcaster(hub, source, BroadcasterConfig{SendInactiveState: true})

	b.Tick(context.Background(), testNow)
	assert.JSONEq(t, `{"Heartbeat":{"Utc":"2026-05-24T13:29:59Z"}}`, receive(t, client))
	assert.False(t, b.Active())

	source.mu.Lock()
	source.snap.Document = state.EmptyDocument()
	source.mu.Unlock()
	b.Tick(context.Background(), testNow)
	assert.Equal(t, "{}", receive(t, client), "an empty document is still reported as no session")
}

func TestBroadcaster_Mirror(t *testing.T) {
	mirror := &MockMirror{calls: make(chan struct{}, 1)}
	mirror.On("MirrorState", "{}", false).Return(errors.New("redis down"))

	b := NewBroadcaster(NewHub(nil), &fixedSource{snap: state.Snapshot{Document: state.EmptyDocument()}},
		BroadcasterConfig{Mirror: mirror})
	b.Tick(context.Background(), testNow)

	select {
	case <-mirror.calls:
	case <-time.After(time.Second):
		t.Fatal("mirror never called")
	}
	b.mirrorWG.Wait()
	mirror.AssertExpectations(t)
}

func TestBroadcaster_RunStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	b := NewBroadcaster(hub, liveSource(), BroadcasterConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.Ticks() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("broadcaster ignored cancellation")
	}
}
