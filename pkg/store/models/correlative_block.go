package models

import "time"

// CorrelativeBlock is a server-granted receipt numbering range. The cursor
// walks from From to To; Remaining must always equal To - Current + 1.
type CorrelativeBlock struct {
	Series     string    `gorm:"column:series;primaryKey"`
	Current    int64     `gorm:"column:current;not null"`
	From       int64     `gorm:"column:from_number;not null"`
	To         int64     `gorm:"column:to_number;not null"`
	Remaining  int64     `gorm:"column:remaining;not null"`
	ReservedAt time.Time `gorm:"column:reserved_at;not null"`
}

func (CorrelativeBlock) TableName() string { return "correlative_blocks" }
