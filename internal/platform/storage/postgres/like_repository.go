package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/livepoll/livepoll/internal/domain"
)

// LikeRepository keeps the like ledger and the poll's denormalized counter in
// lockstep: both writes happen inside one transaction, and the composite
// unique index on (poll_id, user_id) settles races.
type LikeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) *LikeRepository {
	return &LikeRepository{db: db}
}

func (r *LikeRepository) Create(ctx context.Context, like domain.Like) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&like).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Poll{}).
			Where("id = ?", like.PollID).
			Update("likes_count", gorm.Expr("likes_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicate
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("gorm likes: insert: %w", err)
	}
	return nil
}

func (r *LikeRepository) Remove(ctx context.Context, pollID domain.PollID, userID domain.UserID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("poll_id = ? AND user_id = ?", pollID, userID).Delete(&domain.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		// The guard floors the counter at zero; with the ledger invariant it
		// should never trigger, but a decrement must not go negative.
		return tx.Model(&domain.Poll{}).
			Where("id = ? AND likes_count > 0", pollID).
			Update("likes_count", gorm.Expr("likes_count - 1")).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("gorm likes: remove: %w", err)
	}
	return nil
}

func (r *LikeRepository) FindByPollAndUser(ctx context.Context, pollID domain.PollID, userID domain.UserID) (domain.Like, error) {
	var like domain.Like
	err := r.db.WithContext(ctx).
		First(&like, "poll_id = ? AND user_id = ?", pollID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Like{}, domain.ErrNotFound
		}
		return domain.Like{}, fmt.Errorf("gorm likes: find: %w", err)
	}
	return like, nil
}

func (r *LikeRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Like, error) {
	var likes []domain.Like
	err := r.db.WithContext(ctx).
		Preload("Poll").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("gorm likes: list by user: %w", err)
	}
	return likes, nil
}

func (r *LikeRepository) ListByPoll(ctx context.Context, pollID domain.PollID) ([]domain.Like, error) {
	var likes []domain.Like
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("created_at ASC").
		Find(&likes).Error
	if err != nil {
		return nil, fmt.Errorf("gorm likes: list by poll: %w", err)
	}
	return likes, nil
}

func (r *LikeRepository) UserIDsByPoll(ctx context.Context, pollID domain.PollID) ([]domain.UserID, error) {
	var ids []domain.UserID
	err := r.db.WithContext(ctx).
		Model(&domain.Like{}).
		Where("poll_id = ?", pollID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm likes: user ids by poll: %w", err)
	}
	return ids, nil
}

var _ domain.LikeRepository = (*LikeRepository)(nil)
