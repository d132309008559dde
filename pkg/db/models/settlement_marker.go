package models

import "time"

// SettlementMarker proves a business event has already been settled.
type SettlementMarker struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SubjectID string    `gorm:"column:subject_id;type:text;not null;uniqueIndex:ux_settlement_markers_subject_key"`
	MarkerKey string    `gorm:"column:marker_key;type:text;not null;uniqueIndex:ux_settlement_markers_subject_key"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementMarker) TableName() string { return "settlement_markers" }
