package likes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/livepoll/livepoll/internal/domain"
	"github.com/livepoll/livepoll/internal/platform/ids"
)

func TestServiceCreateLike(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	like, err := service.Create(context.Background(), deps.pollID, "user-1")
	if err != nil {
		t.Fatalf("expected like to be created, got: %v", err)
	}
	if like.ID == "" {
		t.Fatal("like ID must not be empty")
	}
	if like.CreatedAt != deps.baseTime {
		t.Fatalf("like should carry the clock's timestamp, got %v", like.CreatedAt)
	}

	poll := deps.store.poll(deps.pollID)
	if poll.LikesCount != 1 {
		t.Fatalf("likes counter should be 1, got %d", poll.LikesCount)
	}

	members, _ := deps.store.likeRepo.UserIDsByPoll(context.Background(), deps.pollID)
	if len(members) != 1 || members[0] != "user-1" {
		t.Fatalf("membership should be [user-1], got %v", members)
	}

	if got := deps.events.count(); got != 1 {
		t.Fatalf("one poll change signal expected, got %d", got)
	}
}

func TestServiceCreateLikeDuplicate(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	if _, err := service.Create(context.Background(), deps.pollID, "user-1"); err != nil {
		t.Fatalf("first like failed: %v", err)
	}

	_, err := service.Create(context.Background(), deps.pollID, "user-1")
	if !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("expected ErrAlreadyLiked, got: %v", err)
	}

	poll := deps.store.poll(deps.pollID)
	if poll.LikesCount != 1 {
		t.Fatalf("counter must stay at 1 after a duplicate, got %d", poll.LikesCount)
	}
	if got := deps.events.count(); got != 1 {
		t.Fatalf("a rejected like must not emit a signal, got %d signals", got)
	}
}

// Concurrent creates bypass the pre-check; the store's uniqueness must settle
// the race so that exactly one like and one increment survive.
func TestServiceCreateLikeConcurrent(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Create(context.Background(), deps.pollID, "user-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyLiked):
		default:
			t.Fatalf("unexpected error from racing like: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("exactly one like must win the race, got %d", successes)
	}
	if poll := deps.store.poll(deps.pollID); poll.LikesCount != 1 {
		t.Fatalf("counter must be incremented exactly once, got %d", poll.LikesCount)
	}
}

func TestServiceCreateLikePollMissing(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	_, err := service.Create(context.Background(), "missing", "user-1")
	if !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got: %v", err)
	}
}

func TestServiceRemoveLike(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	if _, err := service.Create(context.Background(), deps.pollID, "user-1"); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if err := service.Remove(context.Background(), deps.pollID, "user-1"); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}

	poll := deps.store.poll(deps.pollID)
	if poll.LikesCount != 0 {
		t.Fatalf("counter should be back to 0, got %d", poll.LikesCount)
	}
	members, _ := deps.store.likeRepo.UserIDsByPoll(context.Background(), deps.pollID)
	if len(members) != 0 {
		t.Fatalf("membership should be empty, got %v", members)
	}
	if got := deps.events.count(); got != 2 {
		t.Fatalf("like and unlike should each emit a signal, got %d", got)
	}

	if err := service.Remove(context.Background(), deps.pollID, "user-1"); !errors.Is(err, ErrNotLiked) {
		t.Fatalf("removing a missing like should yield ErrNotLiked, got: %v", err)
	}
}

// Counter and membership must agree after any sequence of likes and unlikes.
func TestServiceCounterMatchesMembership(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	users := []domain.UserID{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		if _, err := service.Create(context.Background(), deps.pollID, u); err != nil {
			t.Fatalf("like by %s failed: %v", u, err)
		}
	}
	if err := service.Remove(context.Background(), deps.pollID, "u2"); err != nil {
		t.Fatalf("unlike by u2 failed: %v", err)
	}
	_, _ = service.Create(context.Background(), deps.pollID, "u1") // duplicate, rejected

	poll := deps.store.poll(deps.pollID)
	members, _ := deps.store.likeRepo.UserIDsByPoll(context.Background(), deps.pollID)
	if poll.LikesCount != int64(len(members)) {
		t.Fatalf("likesCount %d diverged from membership size %d", poll.LikesCount, len(members))
	}
	if poll.LikesCount != 3 {
		t.Fatalf("expected 3 likes, got %d", poll.LikesCount)
	}
}

func TestServiceListByUserPopulatesPoll(t *testing.T) {
	deps := newServiceDeps(t)
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, nil, deps.clock, deps.idGen)

	if _, err := service.Create(context.Background(), deps.pollID, "user-1"); err != nil {
		t.Fatalf("like failed: %v", err)
	}

	result, err := service.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list by user failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 like, got %d", len(result))
	}
	if result[0].Poll == nil || result[0].Poll.Title != "Best gopher" {
		t.Fatalf("like should come with its poll populated, got %+v", result[0].Poll)
	}
}

func TestServiceCreateLikeRateLimited(t *testing.T) {
	deps := newServiceDeps(t)
	limiter := &denyingLimiter{}
	service := NewService(deps.store.pollRepo, deps.store.likeRepo, deps.events, limiter, deps.clock, deps.idGen)

	_, err := service.Create(context.Background(), deps.pollID, "user-1")
	if !errors.Is(err, errLimited) {
		t.Fatalf("limiter rejection should propagate, got: %v", err)
	}
	if poll := deps.store.poll(deps.pollID); poll.LikesCount != 0 {
		t.Fatalf("no like must be recorded when throttled, counter %d", poll.LikesCount)
	}
	if deps.events.count() != 0 {
		t.Fatal("no signal must be emitted when throttled")
	}
}

type serviceDependencies struct {
	store    *memStore
	events   *recordingEvents
	clock    *fixedClock
	idGen    *ids.Generator
	baseTime time.Time
	pollID   domain.PollID
}

func newServiceDeps(t *testing.T) serviceDependencies {
	t.Helper()
	base := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)
	store := newMemStore()

	poll := domain.Poll{
		ID:        "poll-1",
		Title:     "Best gopher",
		CreatorID: "creator-1",
		CreatedAt: base,
	}
	if err := store.pollRepo.Create(context.Background(), poll); err != nil {
		t.Fatalf("seeding poll failed: %v", err)
	}

	return serviceDependencies{
		store:    store,
		events:   &recordingEvents{},
		clock:    &fixedClock{now: base},
		idGen:    ids.NewGenerator(),
		baseTime: base,
		pollID:   poll.ID,
	}
}

// memStore backs both fake repositories with the same transactional coupling
// as the real adapter: ledger insert and counter update happen under one lock.
type memStore struct {
	pollRepo *memPollRepo
	likeRepo *memLikeRepo

	mu    sync.Mutex
	polls map[domain.PollID]domain.Poll
	likes []domain.Like
}

func newMemStore() *memStore {
	s := &memStore{polls: make(map[domain.PollID]domain.Poll)}
	s.pollRepo = &memPollRepo{store: s}
	s.likeRepo = &memLikeRepo{store: s}
	return s
}

type memPollRepo struct {
	store *memStore
}

func (r *memPollRepo) Create(_ context.Context, p domain.Poll) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.polls[p.ID] = p
	return nil
}

func (r *memPollRepo) FindByID(_ context.Context, id domain.PollID) (domain.Poll, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.polls[id]
	if !ok {
		return domain.Poll{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) poll(id domain.PollID) domain.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[id]
}

type memLikeRepo struct {
	store *memStore
}

func (r *memLikeRepo) Create(_ context.Context, like domain.Like) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.likes {
		if existing.PollID == like.PollID && existing.UserID == like.UserID {
			return domain.ErrDuplicate
		}
	}
	poll, ok := s.polls[like.PollID]
	if !ok {
		return domain.ErrNotFound
	}
	s.likes = append(s.likes, like)
	poll.LikesCount++
	s.polls[like.PollID] = poll
	return nil
}

func (r *memLikeRepo) Remove(_ context.Context, pollID domain.PollID, userID domain.UserID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.likes {
		if existing.PollID == pollID && existing.UserID == userID {
			s.likes = append(s.likes[:i], s.likes[i+1:]...)
			poll := s.polls[pollID]
			if poll.LikesCount > 0 {
				poll.LikesCount--
			}
			s.polls[pollID] = poll
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memLikeRepo) FindByPollAndUser(_ context.Context, pollID domain.PollID, userID domain.UserID) (domain.Like, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.likes {
		if existing.PollID == pollID && existing.UserID == userID {
			return existing, nil
		}
	}
	return domain.Like{}, domain.ErrNotFound
}

func (r *memLikeRepo) ListByUser(_ context.Context, userID domain.UserID) ([]domain.Like, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Like
	for _, existing := range s.likes {
		if existing.UserID == userID {
			if poll, ok := s.polls[existing.PollID]; ok {
				copied := poll
				existing.Poll = &copied
			}
			result = append(result, existing)
		}
	}
	return result, nil
}

func (r *memLikeRepo) ListByPoll(_ context.Context, pollID domain.PollID) ([]domain.Like, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Like
	for _, existing := range s.likes {
		if existing.PollID == pollID {
			result = append(result, existing)
		}
	}
	return result, nil
}

func (r *memLikeRepo) UserIDsByPoll(_ context.Context, pollID domain.PollID) ([]domain.UserID, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.UserID
	for _, existing := range s.likes {
		if existing.PollID == pollID {
			result = append(result, existing.UserID)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

type recordingEvents struct {
	mu    sync.Mutex
	polls []domain.PollID
}

func (r *recordingEvents) PollChanged(_ context.Context, id domain.PollID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, id)
	return nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.polls)
}

type fixedClock struct {
	now time.Time
}

func (f *fixedClock) Now() time.Time {
	return f.now
}

type denyingLimiter struct{}

var errLimited = fmt.Errorf("limited")

func (denyingLimiter) Allow(context.Context, domain.UserID, string) error {
	return errLimited
}

var (
	_ domain.PollRepository = (*memPollRepo)(nil)
	_ domain.LikeRepository = (*memLikeRepo)(nil)
	_ domain.PollEvents     = (*recordingEvents)(nil)
)
