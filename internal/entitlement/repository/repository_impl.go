package repository

import (
	"context"
	"time"

	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entitlement *entitlementdomain.Entitlement) error {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			id, sku_id, entitlement_type, guild_id, user_id, active, starts_at, ends_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		entitlement.ID,
		entitlement.SKUID,
		entitlement.Type,
		entitlement.GuildID,
		entitlement.UserID,
		entitlement.Active,
		entitlement.StartsAt,
		entitlement.EndsAt,
		entitlement.CreatedAt,
		entitlement.UpdatedAt,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entitlementdomain.ErrConflict
	}
	return nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entitlement *entitlementdomain.Entitlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			id, sku_id, entitlement_type, guild_id, user_id, active, starts_at, ends_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sku_id = excluded.sku_id,
			entitlement_type = excluded.entitlement_type,
			guild_id = excluded.guild_id,
			user_id = excluded.user_id,
			active = excluded.active,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			updated_at = excluded.updated_at`,
		entitlement.ID,
		entitlement.SKUID,
		entitlement.Type,
		entitlement.GuildID,
		entitlement.UserID,
		entitlement.Active,
		entitlement.StartsAt,
		entitlement.EndsAt,
		entitlement.CreatedAt,
		entitlement.UpdatedAt,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) error {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM entitlements WHERE id = ?`,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entitlementdomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindActiveByGuild(ctx context.Context, db *gorm.DB, guildID string) ([]entitlementdomain.Entitlement, error) {
	var entitlements []entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku_id, entitlement_type, guild_id, user_id, active, starts_at, ends_at,
		 created_at, updated_at
		 FROM entitlements
		 WHERE guild_id = ? AND active = ?
		 ORDER BY created_at ASC`,
		guildID,
		true,
	).Scan(&entitlements).Error
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

// FindExpiredActive returns rows whose active flag went stale: still marked
// active but expired before now. Perpetual entitlements (ends_at NULL) are
// never matched.
func (r *repo) FindExpiredActive(ctx context.Context, db *gorm.DB, now time.Time) ([]entitlementdomain.Entitlement, error) {
	var entitlements []entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku_id, entitlement_type, guild_id, user_id, active, starts_at, ends_at,
		 created_at, updated_at
		 FROM entitlements
		 WHERE active = ? AND ends_at IS NOT NULL AND ends_at < ?`,
		true,
		now,
	).Scan(&entitlements).Error
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

func (r *repo) MarkInactive(ctx context.Context, db *gorm.DB, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements SET active = ?, updated_at = ? WHERE id IN ?`,
		false,
		now,
		ids,
	)
	return result.RowsAffected, result.Error
}
