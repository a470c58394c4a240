package realtime

import (
	"context"
	"log/slog"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/metrics"
)

// Dispatcher consumes poll-changed signals, re-projects the poll and fans the
// snapshot out to the poll's room. It never writes to the store.
type Dispatcher struct {
	signals   domain.PollEventStream
	projector domain.Projector
	rooms     RoomTable
	logger    *slog.Logger
}

func NewDispatcher(signals domain.PollEventStream, projector domain.Projector, rooms RoomTable, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		signals:   signals,
		projector: projector,
		rooms:     rooms,
		logger:    logger,
	}
}

// Run blocks consuming the signal stream until ctx is done. Signals are
// handled one at a time, so broadcasts for the same poll keep commit order.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.signals.Listen(ctx, d.Notify)
}

// Notify projects the poll and broadcasts the snapshot. A failed projection
// is logged and swallowed: one poll's transient read error must not take the
// dispatcher down for everyone else.
func (d *Dispatcher) Notify(ctx context.Context, pollID domain.PollID) {
	snapshot, err := d.projector.Project(ctx, pollID)
	if err != nil {
		d.logger.Warn("projection failed, skipping broadcast", "err", err, "poll", pollID)
		return
	}

	delivered := d.rooms.Broadcast(pollID, PollUpdatedEvent(snapshot))
	metrics.IncBroadcast()
	d.logger.Debug("poll snapshot broadcast", "poll", pollID, "sessions", delivered)
}
