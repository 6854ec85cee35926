// Package domain contains the webhook resource model.
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Webhook is a guild-owned resource subject to quota enforcement.
type Webhook struct {
	ID        string    `gorm:"primaryKey"`
	GuildID   string    `gorm:"not null;index"`
	ChannelID string    `gorm:"not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Webhook) TableName() string { return "webhooks" }

type Repository interface {
	CountActive(ctx context.Context, db *gorm.DB, guildID string) (int64, error)
	CountAllActive(ctx context.Context, db *gorm.DB) (int64, error)
	// FindOldestActive returns up to limit active webhooks ordered by
	// creation time ascending; the enforcement keep-set.
	FindOldestActive(ctx context.Context, db *gorm.DB, guildID string, limit int) ([]Webhook, error)
	// DeactivateAllExcept flips every active webhook of the guild not in
	// keepIDs in one conditional update, so compliant webhooks are never
	// transiently disabled.
	DeactivateAllExcept(ctx context.Context, db *gorm.DB, guildID string, keepIDs []string, now time.Time) (int64, error)
	DeactivateByGuild(ctx context.Context, db *gorm.DB, guildID string, now time.Time) (int64, error)
}
