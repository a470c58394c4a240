package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/livepoll/livepoll/internal/domain"
)

// VoteRepository records votes and keeps the per-option and poll-total
// counters consistent with the ledger inside one transaction.
type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

func (r *VoteRepository) Cast(ctx context.Context, vote domain.Vote) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&vote).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Option{}).
			Where("id = ? AND poll_id = ?", vote.OptionID, vote.PollID).
			Update("votes_count", gorm.Expr("votes_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		res = tx.Model(&domain.Poll{}).
			Where("id = ?", vote.PollID).
			Update("total_votes", gorm.Expr("total_votes + 1"))
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
		return fmt.Errorf("gorm votes: cast: %w", err)
	}
	return nil
}

func (r *VoteRepository) FindByPollAndUser(ctx context.Context, pollID domain.PollID, userID domain.UserID) (domain.Vote, error) {
	var vote domain.Vote
	err := r.db.WithContext(ctx).
		First(&vote, "poll_id = ? AND user_id = ?", pollID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("gorm votes: find: %w", err)
	}
	return vote, nil
}

func (r *VoteRepository) CountByOption(ctx context.Context, pollID domain.PollID) (map[domain.OptionID]int64, error) {
	type row struct {
		OptionID string
		Total    int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&domain.Vote{}).
		Select("option_id as option_id, COUNT(*) as total").
		Where("poll_id = ?", pollID).
		Group("option_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm votes: count by option: %w", err)
	}

	totals := make(map[domain.OptionID]int64, len(rows))
	for _, item := range rows {
		totals[domain.OptionID(item.OptionID)] = item.Total
	}
	return totals, nil
}

var _ domain.VoteRepository = (*VoteRepository)(nil)
