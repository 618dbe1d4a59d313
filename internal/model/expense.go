package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tells how an expense entered the system.
type Source string

const (
	SourcePhoto  Source = "photo"
	SourceVoice  Source = "voice"
	SourceManual Source = "manual"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourcePhoto, SourceVoice, SourceManual:
		return true
	}
	return false
}

// Expense is a single persisted spending record. Vendor and Payload hold
// ciphertext; fiscal metadata is stored in plaintext.
type Expense struct {
	ID                       uint                `gorm:"primaryKey"`
	UserID                   uint                `gorm:"index;not null"`
	CategoryID               *uint               `gorm:"index"`
	Source                   Source              `gorm:"size:16;not null"`
	Amount                   decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Currency                 string              `gorm:"size:10"`
	Vendor                   string              `gorm:"type:text"`
	VendorFiscalCode         *string             `gorm:"size:128"`
	VendorRegistrationNumber *string             `gorm:"size:128"`
	VendorAddress            *string             `gorm:"type:text"`
	PurchaseDate             *time.Time          `gorm:"type:date"`
	Payload                  string              `gorm:"column:json_data;type:text"`
	AIConfidence             *float64
	CreatedAt                time.Time `gorm:"index"`
	UpdatedAt                time.Time
}
