package domain

import (
	"context"
	"time"
)

type PollRepository interface {
	Create(ctx context.Context, p Poll) error
	FindByID(ctx context.Context, id PollID) (Poll, error)
}

type LikeRepository interface {
	// Create inserts the ledger record and bumps the poll counter in one
	// transaction. Returns ErrDuplicate when (poll, user) already exists.
	Create(ctx context.Context, like Like) error
	// Remove deletes the ledger record and decrements the counter, floored
	// at zero. Returns ErrNotFound when the like does not exist.
	Remove(ctx context.Context, pollID PollID, userID UserID) error
	FindByPollAndUser(ctx context.Context, pollID PollID, userID UserID) (Like, error)
	ListByUser(ctx context.Context, userID UserID) ([]Like, error)
	ListByPoll(ctx context.Context, pollID PollID) ([]Like, error)
	UserIDsByPoll(ctx context.Context, pollID PollID) ([]UserID, error)
}

type VoteRepository interface {
	// Cast inserts the vote and increments the option and poll counters in
	// one transaction. Returns ErrDuplicate when the user already voted.
	Cast(ctx context.Context, vote Vote) error
	FindByPollAndUser(ctx context.Context, pollID PollID, userID UserID) (Vote, error)
	CountByOption(ctx context.Context, pollID PollID) (map[OptionID]int64, error)
}

// PollEvents is the post-commit change signal the ledgers emit. Delivery is
// best-effort: a broadcast lost between commit and push is recovered by the
// next projection read.
type PollEvents interface {
	PollChanged(ctx context.Context, id PollID) error
}

// PollEventStream is the consuming side of the signal, used by the realtime
// dispatcher. Listen blocks until ctx is done.
type PollEventStream interface {
	PollEvents
	Listen(ctx context.Context, handler func(context.Context, PollID)) error
}

type Projector interface {
	Project(ctx context.Context, id PollID) (PollSnapshot, error)
}

type LikeLedger interface {
	Create(ctx context.Context, pollID PollID, userID UserID) (Like, error)
	Remove(ctx context.Context, pollID PollID, userID UserID) error
	ListByUser(ctx context.Context, userID UserID) ([]Like, error)
	ListByPoll(ctx context.Context, pollID PollID) ([]Like, error)
}

type VoteLedger interface {
	Cast(ctx context.Context, pollID PollID, userID UserID, optionID OptionID) (Vote, error)
	Find(ctx context.Context, pollID PollID, userID UserID) (Vote, error)
}

type Limiter interface {
	Allow(ctx context.Context, userID UserID, action string) error
}

type Clock interface {
	Now() time.Time
}
