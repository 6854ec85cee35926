package repository

import (
	"context"
	"time"

	guilddomain "github.com/trello-talk/tacows/internal/guild/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() guilddomain.Repository {
	return &repo{}
}

func (r *repo) UpsertMaxWebhooks(ctx context.Context, db *gorm.DB, guildID string, maxWebhooks int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO guilds (id, max_webhooks, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			max_webhooks = excluded.max_webhooks,
			updated_at = excluded.updated_at`,
		guildID,
		maxWebhooks,
		now,
		now,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, guildID string) (*guilddomain.Guild, error) {
	var guild guilddomain.Guild
	err := db.WithContext(ctx).Raw(
		`SELECT id, max_webhooks, created_at, updated_at FROM guilds WHERE id = ?`,
		guildID,
	).Scan(&guild).Error
	if err != nil {
		return nil, err
	}
	if guild.ID == "" {
		return nil, nil
	}
	return &guild, nil
}
