package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/livepoll/livepoll/internal/domain"
)

func TestDispatcherNotifyBroadcasts(t *testing.T) {
	hub := NewHub(4)
	session := hub.Register()
	hub.Join(session.ID, "poll-1")

	projector := &stubProjector{
		snapshots: map[domain.PollID]domain.PollSnapshot{
			"poll-1": {PollID: "poll-1", Title: "Best gopher", TotalVotes: 2},
		},
	}
	dispatcher := NewDispatcher(nil, projector, hub, discardLogger())

	dispatcher.Notify(context.Background(), "poll-1")

	select {
	case ev := <-session.Events():
		if ev.Event != EventPollDataUpdated {
			t.Fatalf("expected %q, got %q", EventPollDataUpdated, ev.Event)
		}
		snapshot, ok := ev.Data.(domain.PollSnapshot)
		if !ok {
			t.Fatalf("event data should be a snapshot, got %T", ev.Data)
		}
		if snapshot.TotalVotes != 2 {
			t.Fatalf("stale snapshot broadcast: %+v", snapshot)
		}
	default:
		t.Fatal("session did not receive the broadcast")
	}
}

// Every signal triggers a fresh projection; the broadcast always carries the
// state at broadcast time, never a cached one.
func TestDispatcherProjectsPerSignal(t *testing.T) {
	hub := NewHub(4)
	session := hub.Register()
	hub.Join(session.ID, "poll-1")

	projector := &stubProjector{
		snapshots: map[domain.PollID]domain.PollSnapshot{
			"poll-1": {PollID: "poll-1", TotalVotes: 1},
		},
	}
	dispatcher := NewDispatcher(nil, projector, hub, discardLogger())

	dispatcher.Notify(context.Background(), "poll-1")
	projector.set("poll-1", domain.PollSnapshot{PollID: "poll-1", TotalVotes: 2})
	dispatcher.Notify(context.Background(), "poll-1")

	first := <-session.Events()
	second := <-session.Events()
	if first.Data.(domain.PollSnapshot).TotalVotes != 1 {
		t.Fatalf("first broadcast wrong: %+v", first.Data)
	}
	if second.Data.(domain.PollSnapshot).TotalVotes != 2 {
		t.Fatalf("second broadcast did not pick up the new state: %+v", second.Data)
	}
	if projector.calls() != 2 {
		t.Fatalf("expected one projection per signal, got %d", projector.calls())
	}
}

func TestDispatcherSwallowsProjectionFailure(t *testing.T) {
	hub := NewHub(4)
	session := hub.Register()
	hub.Join(session.ID, "poll-1")

	projector := &stubProjector{err: errors.New("store down")}
	dispatcher := NewDispatcher(nil, projector, hub, discardLogger())

	dispatcher.Notify(context.Background(), "poll-1")

	select {
	case ev := <-session.Events():
		t.Fatalf("nothing should be broadcast on a failed projection, got %q", ev.Event)
	default:
	}
}

func TestDispatcherRunConsumesStream(t *testing.T) {
	hub := NewHub(4)
	session := hub.Register()
	hub.Join(session.ID, "poll-1")

	stream := &stubStream{signals: []domain.PollID{"poll-1", "poll-1"}}
	projector := &stubProjector{
		snapshots: map[domain.PollID]domain.PollSnapshot{
			"poll-1": {PollID: "poll-1"},
		},
	}
	dispatcher := NewDispatcher(stream, projector, hub, discardLogger())

	if err := dispatcher.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := len(session.Events()); got != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", got)
	}
}

type stubProjector struct {
	mu        sync.Mutex
	snapshots map[domain.PollID]domain.PollSnapshot
	err       error
	projected int
}

func (s *stubProjector) Project(_ context.Context, id domain.PollID) (domain.PollSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projected++
	if s.err != nil {
		return domain.PollSnapshot{}, s.err
	}
	snapshot, ok := s.snapshots[id]
	if !ok {
		return domain.PollSnapshot{}, domain.ErrNotFound
	}
	return snapshot, nil
}

func (s *stubProjector) set(id domain.PollID, snapshot domain.PollSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snapshot
}

func (s *stubProjector) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projected
}

// stubStream replays a fixed list of signals and returns.
type stubStream struct {
	signals []domain.PollID
}

func (s *stubStream) PollChanged(_ context.Context, _ domain.PollID) error { return nil }

func (s *stubStream) Listen(ctx context.Context, handler func(context.Context, domain.PollID)) error {
	for _, id := range s.signals {
		handler(ctx, id)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	_ domain.Projector       = (*stubProjector)(nil)
	_ domain.PollEventStream = (*stubStream)(nil)
)
