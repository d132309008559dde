package models

import (
	"time"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// RewardCounter holds a non-monetary balance (points, spins) for one user.
type RewardCounter struct {
	UserID    string            `gorm:"column:user_id;type:text;primaryKey"`
	Kind      enums.CounterKind `gorm:"column:kind;type:text;primaryKey"`
	Value     int64             `gorm:"column:value;not null;default:0"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardCounter) TableName() string { return "reward_counters" }

// RewardCounterEntry is the append-only history of counter changes.
type RewardCounterEntry struct {
	ID          int64             `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      string            `gorm:"column:user_id;type:text;not null;index:idx_reward_counter_entries_user"`
	Kind        enums.CounterKind `gorm:"column:kind;type:text;not null"`
	Delta       int64             `gorm:"column:delta;not null"`
	ValueAfter  int64             `gorm:"column:value_after;not null"`
	Reason      string            `gorm:"column:reason;type:text;not null;default:''"`
	ReferenceID *string           `gorm:"column:reference_id;type:text"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null"`
}

func (RewardCounterEntry) TableName() string { return "reward_counter_entries" }
