// Package votes implements the vote ledger: one final vote per (poll, user),
// counters maintained with the ledger write, change signal after commit.
package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/ids"
	"github.com/livepoll/livepoll/internal/platform/logger"
)

var (
	ErrAlreadyVoted  = errors.New("already voted in this poll")
	ErrInvalidOption = errors.New("option does not belong to this poll")
	ErrPollNotFound  = errors.New("poll not found")
)

type Service struct {
	polls   domain.PollRepository
	votes   domain.VoteRepository
	events  domain.PollEvents
	limiter domain.Limiter
	clock   domain.Clock
	ids     *ids.Generator
}

func NewService(
	polls domain.PollRepository,
	votes domain.VoteRepository,
	events domain.PollEvents,
	limiter domain.Limiter,
	clock domain.Clock,
	idsGen *ids.Generator,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		polls:   polls,
		votes:   votes,
		events:  events,
		limiter: limiter,
		clock:   clock,
		ids:     idsGen,
	}
}

// Cast validates the option against the poll's option list and records the
// vote. Concurrent submissions for the same (poll, user) are settled by the
// unique index: exactly one insert and one counter increment survive, the
// loser observes ErrAlreadyVoted.
func (s *Service) Cast(ctx context.Context, pollID domain.PollID, userID domain.UserID, optionID domain.OptionID) (domain.Vote, error) {
	if pollID == "" || userID == "" {
		return domain.Vote{}, ErrPollNotFound
	}

	poll, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Vote{}, ErrPollNotFound
		}
		return domain.Vote{}, err
	}

	if !optionBelongs(poll.Options, optionID) {
		return domain.Vote{}, ErrInvalidOption
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, userID, "vote"); err != nil {
			return domain.Vote{}, err
		}
	}

	vote := domain.Vote{
		ID:        domain.VoteID(s.ids.New()),
		PollID:    pollID,
		UserID:    userID,
		OptionID:  optionID,
		CreatedAt: s.clock.Now(),
	}

	if err := s.votes.Cast(ctx, vote); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Vote{}, ErrAlreadyVoted
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Vote{}, ErrInvalidOption
		}
		return domain.Vote{}, fmt.Errorf("votes: cast: %w", err)
	}

	s.notifyChanged(ctx, pollID)
	return vote, nil
}

// Find returns the caller's recorded vote, domain.ErrNotFound when the user
// has not voted in this poll.
func (s *Service) Find(ctx context.Context, pollID domain.PollID, userID domain.UserID) (domain.Vote, error) {
	return s.votes.FindByPollAndUser(ctx, pollID, userID)
}

func (s *Service) notifyChanged(ctx context.Context, pollID domain.PollID) {
	if s.events == nil {
		return
	}
	if err := s.events.PollChanged(ctx, pollID); err != nil {
		logger.Error("poll change signal failed", "err", err, "poll", pollID)
	}
}

func optionBelongs(options []domain.Option, id domain.OptionID) bool {
	for _, opt := range options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

var _ domain.VoteLedger = (*Service)(nil)
