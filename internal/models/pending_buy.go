package models

import (
	"time"

	"gorm.io/gorm"
)

// PendingBuy is a non-initial buy that waits for the owner to confirm or
// reject it. Confirmed and rejected records are terminal and never deleted.
type PendingBuy struct {
	gorm.Model
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Price       float64   `gorm:"not null" json:"price"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	IsConfirmed bool      `json:"is_confirmed"`
	IsRejected  bool      `json:"is_rejected"`
}

// Outstanding reports whether the record still awaits a decision.
func (p *PendingBuy) Outstanding() bool {
	return !p.IsConfirmed && !p.IsRejected
}
