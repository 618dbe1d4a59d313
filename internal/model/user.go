package model

import "time"

// User owns categories and expenses. Telegram users carry their chat identity,
// API-only users may not have one.
type User struct {
	ID          uint   `gorm:"primaryKey"`
	TelegramID  *int64 `gorm:"uniqueIndex"`
	Username    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Categories  []Category `gorm:"constraint:OnDelete:CASCADE"`
	Expenses    []Expense  `gorm:"constraint:OnDelete:CASCADE"`
}
