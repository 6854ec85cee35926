// Package domain contains the guild quota model.
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Guild is the derived quota row for one guild. MaxWebhooks is always
// recomputable from the guild's active entitlements; it is never an
// independent source of truth.
type Guild struct {
	ID          string    `gorm:"primaryKey"`
	MaxWebhooks int       `gorm:"not null;default:5"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Guild) TableName() string { return "guilds" }

type Repository interface {
	UpsertMaxWebhooks(ctx context.Context, db *gorm.DB, guildID string, maxWebhooks int, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, guildID string) (*Guild, error)
}
