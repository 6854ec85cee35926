package repository

import (
	"context"
	"time"

	webhookdomain "github.com/trello-talk/tacows/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, guildID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM webhooks WHERE guild_id = ? AND active = ?`,
		guildID,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountAllActive(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM webhooks WHERE active = ?`,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindOldestActive(ctx context.Context, db *gorm.DB, guildID string, limit int) ([]webhookdomain.Webhook, error) {
	var webhooks []webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT id, guild_id, channel_id, active, created_at, updated_at
		 FROM webhooks
		 WHERE guild_id = ? AND active = ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		guildID,
		true,
		limit,
	).Scan(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *repo) DeactivateAllExcept(ctx context.Context, db *gorm.DB, guildID string, keepIDs []string, now time.Time) (int64, error) {
	var result *gorm.DB
	if len(keepIDs) == 0 {
		result = db.WithContext(ctx).Exec(
			`UPDATE webhooks SET active = ?, updated_at = ? WHERE guild_id = ? AND active = ?`,
			false,
			now,
			guildID,
			true,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE webhooks SET active = ?, updated_at = ?
			 WHERE guild_id = ? AND active = ? AND id NOT IN ?`,
			false,
			now,
			guildID,
			true,
			keepIDs,
		)
	}
	return result.RowsAffected, result.Error
}

func (r *repo) DeactivateByGuild(ctx context.Context, db *gorm.DB, guildID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE webhooks SET active = ?, updated_at = ? WHERE guild_id = ? AND active = ?`,
		false,
		now,
		guildID,
		true,
	)
	return result.RowsAffected, result.Error
}
