package domain

import (
	"time"
)

type (
	PollID   string
	OptionID string
	UserID   string
	LikeID   string
	VoteID   string
)

// Poll carries the denormalized aggregate counters next to the document itself.
// LikesCount and TotalVotes are only ever touched inside the same transaction
// as the ledger write that justifies them.
type Poll struct {
	ID          PollID    `gorm:"column:id;type:char(26);primaryKey" json:"pollId"`
	Title       string    `gorm:"column:title;type:text;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	CreatorID   UserID    `gorm:"column:creator_id;type:char(26);not null;index" json:"creatorId"`
	Options     []Option  `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`
	LikesCount  int64     `gorm:"column:likes_count;not null;default:0" json:"likesCount"`
	TotalVotes  int64     `gorm:"column:total_votes;not null;default:0" json:"totalVotes"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Option belongs to exactly one poll; Position preserves the order the
// creator defined the options in.
type Option struct {
	ID         OptionID `gorm:"column:id;type:char(26);primaryKey" json:"optionId"`
	PollID     PollID   `gorm:"column:poll_id;type:char(26);not null;index" json:"pollId"`
	Text       string   `gorm:"column:text;type:text;not null" json:"text"`
	Position   int      `gorm:"column:position;not null" json:"position"`
	VotesCount int64    `gorm:"column:votes_count;not null;default:0" json:"votesCount"`
}

// Like is the durable one-per-(poll,user) ledger record. The composite unique
// index is the source of truth for "already liked": a racing insert that slips
// past the pre-check is rejected here.
type Like struct {
	ID        LikeID    `gorm:"column:id;type:char(26);primaryKey" json:"likeId"`
	PollID    PollID    `gorm:"column:poll_id;type:char(26);not null;uniqueIndex:idx_likes_poll_user,priority:1" json:"pollId"`
	UserID    UserID    `gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_likes_poll_user,priority:2;index:idx_likes_user" json:"userId"`
	Poll      *Poll     `gorm:"foreignKey:PollID" json:"poll,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// Vote mirrors Like for the voting path. Votes are final: there is no update
// or delete operation on this table.
type Vote struct {
	ID        VoteID    `gorm:"column:id;type:char(26);primaryKey" json:"voteId"`
	PollID    PollID    `gorm:"column:poll_id;type:char(26);not null;uniqueIndex:idx_votes_poll_user,priority:1" json:"pollId"`
	UserID    UserID    `gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_votes_poll_user,priority:2" json:"userId"`
	OptionID  OptionID  `gorm:"column:option_id;type:char(26);not null;index" json:"optionId"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// PollSnapshot is the projected, displayable state of a poll at read time.
type PollSnapshot struct {
	PollID      PollID         `json:"pollId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	CreatorID   UserID         `json:"creatorId"`
	Options     []OptionResult `json:"options"`
	TotalVotes  int64          `json:"totalVotes"`
	LikesCount  int64          `json:"likesCount"`
	LikedBy     []UserID       `json:"likedBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type OptionResult struct {
	OptionID OptionID `json:"optionId"`
	Text     string   `json:"text"`
	Votes    int64    `json:"votes"`
	Percent  int      `json:"percent"`
}

func (Poll) TableName() string { return "polls" }

func (Option) TableName() string { return "options" }

func (Like) TableName() string { return "likes" }

func (Vote) TableName() string { return "votes" }
