package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	Upsert(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	Delete(ctx context.Context, db *gorm.DB, id string) error
	FindActiveByGuild(ctx context.Context, db *gorm.DB, guildID string) ([]Entitlement, error)
	FindExpiredActive(ctx context.Context, db *gorm.DB, now time.Time) ([]Entitlement, error)
	MarkInactive(ctx context.Context, db *gorm.DB, ids []string, now time.Time) (int64, error)
}
