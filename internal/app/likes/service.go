// Package likes implements the like ledger: one like per (poll, user), with
// the poll's counter kept consistent and a change signal emitted after commit.
package likes

import (
	"context"
	"errors"
	"fmt"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/ids"
	"github.com/livepoll/livepoll/internal/platform/logger"
)

var (
	ErrAlreadyLiked = errors.New("already liked this poll")
	ErrNotLiked     = errors.New("poll not liked yet")
	ErrPollNotFound = errors.New("poll not found")
)

// Service concentrates the like rules and delegates persistence to the
// repositories.
type Service struct {
	polls   domain.PollRepository
	likes   domain.LikeRepository
	events  domain.PollEvents
	limiter domain.Limiter
	clock   domain.Clock
	ids     *ids.Generator
}

func NewService(
	polls domain.PollRepository,
	likes domain.LikeRepository,
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
		likes:   likes,
		events:  events,
		limiter: limiter,
		clock:   clock,
		ids:     idsGen,
	}
}

// Create records a like. The pre-check keeps the common duplicate case cheap;
// the unique index in the repository is what actually settles races, and its
// rejection surfaces as ErrAlreadyLiked too.
func (s *Service) Create(ctx context.Context, pollID domain.PollID, userID domain.UserID) (domain.Like, error) {
	if pollID == "" || userID == "" {
		return domain.Like{}, ErrPollNotFound
	}

	if _, err := s.polls.FindByID(ctx, pollID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Like{}, ErrPollNotFound
		}
		return domain.Like{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, userID, "like"); err != nil {
			return domain.Like{}, err
		}
	}

	if _, err := s.likes.FindByPollAndUser(ctx, pollID, userID); err == nil {
		return domain.Like{}, ErrAlreadyLiked
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Like{}, err
	}

	like := domain.Like{
		ID:        domain.LikeID(s.ids.New()),
		PollID:    pollID,
		UserID:    userID,
		CreatedAt: s.clock.Now(),
	}

	if err := s.likes.Create(ctx, like); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.Like{}, ErrAlreadyLiked
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Like{}, ErrPollNotFound
		}
		return domain.Like{}, fmt.Errorf("likes: create: %w", err)
	}

	s.notifyChanged(ctx, pollID)
	return like, nil
}

// Remove deletes the like and decrements the counter. NotLiked is an expected
// business outcome, not a failure of the ledger.
func (s *Service) Remove(ctx context.Context, pollID domain.PollID, userID domain.UserID) error {
	if pollID == "" || userID == "" {
		return ErrNotLiked
	}

	if err := s.likes.Remove(ctx, pollID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNotLiked
		}
		return fmt.Errorf("likes: remove: %w", err)
	}

	s.notifyChanged(ctx, pollID)
	return nil
}

func (s *Service) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Like, error) {
	return s.likes.ListByUser(ctx, userID)
}

func (s *Service) ListByPoll(ctx context.Context, pollID domain.PollID) ([]domain.Like, error) {
	return s.likes.ListByPoll(ctx, pollID)
}

// notifyChanged emits the post-commit signal. Delivery is best-effort: a
// failed publish must not fail the mutation the caller already committed.
func (s *Service) notifyChanged(ctx context.Context, pollID domain.PollID) {
	if s.events == nil {
		return
	}
	if err := s.events.PollChanged(ctx, pollID); err != nil {
		logger.Error("poll change signal failed", "err", err, "poll", pollID)
	}
}

var _ domain.LikeLedger = (*Service)(nil)
