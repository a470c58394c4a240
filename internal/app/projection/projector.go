// Package projection builds read-only poll snapshots for the REST surface and
// the room broadcaster.
package projection

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/metrics"
)

var ErrPollNotFound = errors.New("poll not found")

// Projector reads committed state only; it never mutates the store. Because it
// reads the same tables the ledgers write, a projection taken after a commit
// always reflects that commit.
type Projector struct {
	polls domain.PollRepository
	likes domain.LikeRepository
}

func NewProjector(polls domain.PollRepository, likes domain.LikeRepository) *Projector {
	return &Projector{polls: polls, likes: likes}
}

func (p *Projector) Project(ctx context.Context, id domain.PollID) (domain.PollSnapshot, error) {
	start := time.Now()

	poll, err := p.polls.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PollSnapshot{}, ErrPollNotFound
		}
		return domain.PollSnapshot{}, err
	}

	likedBy, err := p.likes.UserIDsByPoll(ctx, id)
	if err != nil {
		return domain.PollSnapshot{}, err
	}
	if likedBy == nil {
		likedBy = []domain.UserID{}
	}

	options := make([]domain.OptionResult, len(poll.Options))
	for i, opt := range poll.Options {
		options[i] = domain.OptionResult{
			OptionID: opt.ID,
			Text:     opt.Text,
			Votes:    opt.VotesCount,
			Percent:  percentOf(opt.VotesCount, poll.TotalVotes),
		}
	}

	metrics.ObserveProjectionDuration(time.Since(start).Seconds())

	return domain.PollSnapshot{
		PollID:      poll.ID,
		Title:       poll.Title,
		Description: poll.Description,
		CreatorID:   poll.CreatorID,
		Options:     options,
		TotalVotes:  poll.TotalVotes,
		LikesCount:  poll.LikesCount,
		LikedBy:     likedBy,
		CreatedAt:   poll.CreatedAt,
	}, nil
}

// percentOf floors the denominator at 1 so a poll with no votes yields 0%
// instead of dividing by zero.
func percentOf(votes, total int64) int {
	if total < 1 {
		total = 1
	}
	return int(math.Round(100 * float64(votes) / float64(total)))
}

var _ domain.Projector = (*Projector)(nil)
