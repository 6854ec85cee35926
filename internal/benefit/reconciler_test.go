package benefit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	entitlementrepo "github.com/trello-talk/tacows/internal/entitlement/repository"
	guildrepo "github.com/trello-talk/tacows/internal/guild/repository"
	obsmetrics "github.com/trello-talk/tacows/internal/observability/metrics"
	webhookrepo "github.com/trello-talk/tacows/internal/webhook/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE entitlements (
			id TEXT PRIMARY KEY,
			sku_id TEXT NOT NULL,
			entitlement_type INTEGER NOT NULL,
			guild_id TEXT,
			user_id TEXT,
			active BOOLEAN NOT NULL,
			starts_at DATETIME,
			ends_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE guilds (
			id TEXT PRIMARY KEY,
			max_webhooks INTEGER NOT NULL DEFAULT 5,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE webhooks (
			id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newTestReconciler(t *testing.T, db *gorm.DB, now time.Time) Service {
	t.Helper()
	obsmetrics.ResetForTest(prometheus.NewRegistry())

	holder, err := config.NewQuotaConfigHolder(config.Config{
		PlusSKUID: "sku_plus",
		ProSKUID:  "sku_pro",
	})
	require.NoError(t, err)

	return New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(now),
		Quotas:      holder,
		EntRepo:     entitlementrepo.Provide(),
		GuildRepo:   guildrepo.Provide(),
		WebhookRepo: webhookrepo.Provide(),
	})
}

func seedGuildEntitlement(t *testing.T, db *gorm.DB, id, guildID, skuID string, active bool, createdAt time.Time) {
	t.Helper()
	err := db.Exec(`
		INSERT INTO entitlements (id, sku_id, entitlement_type, guild_id, user_id, active, starts_at, ends_at, created_at, updated_at)
		VALUES (?, ?, 8, ?, NULL, ?, ?, NULL, ?, ?)
	`, id, skuID, guildID, active, createdAt, createdAt, createdAt).Error
	require.NoError(t, err)
}

func seedWebhook(t *testing.T, db *gorm.DB, id, guildID string, active bool, createdAt time.Time) {
	t.Helper()
	err := db.Exec(`
		INSERT INTO webhooks (id, guild_id, channel_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, guildID, "chan-1", active, createdAt, createdAt).Error
	require.NoError(t, err)
}

func guildQuota(t *testing.T, db *gorm.DB, guildID string) int {
	t.Helper()
	var quota int
	require.NoError(t, db.Raw(`SELECT max_webhooks FROM guilds WHERE id = ?`, guildID).Scan(&quota).Error)
	return quota
}

func activeWebhookIDs(t *testing.T, db *gorm.DB, guildID string) []string {
	t.Helper()
	var ids []string
	err := db.Raw(`SELECT id FROM webhooks WHERE guild_id = ? AND active = ? ORDER BY created_at ASC`, guildID, true).Scan(&ids).Error
	require.NoError(t, err)
	return ids
}

func TestReconcileKeepsOldestWithinQuota(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	// No premium entitlement, so the free-tier quota of 5 applies.
	base := now.Add(-10 * time.Hour)
	for i := 0; i < 8; i++ {
		seedWebhook(t, db, webhookID(i), "guild-1", true, base.Add(time.Duration(i)*time.Hour))
	}

	require.NoError(t, svc.Reconcile(context.Background(), "guild-1"))

	assert.Equal(t, 5, guildQuota(t, db, "guild-1"))
	active := activeWebhookIDs(t, db, "guild-1")
	require.Len(t, active, 5)
	// The three newest must be the ones deactivated.
	assert.Equal(t, []string{webhookID(0), webhookID(1), webhookID(2), webhookID(3), webhookID(4)}, active)
}

func TestReconcileTierPrecedence(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	base := now.Add(-time.Hour)
	seedGuildEntitlement(t, db, "ent-plus", "guild-1", "sku_plus", true, base)
	seedGuildEntitlement(t, db, "ent-pro", "guild-1", "sku_pro", true, base)

	require.NoError(t, svc.Reconcile(context.Background(), "guild-1"))
	assert.Equal(t, 200, guildQuota(t, db, "guild-1"), "highest tier wins")
}

func TestReconcileInactiveEntitlementsIgnored(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	seedGuildEntitlement(t, db, "ent-pro", "guild-1", "sku_pro", false, now.Add(-time.Hour))

	require.NoError(t, svc.Reconcile(context.Background(), "guild-1"))
	assert.Equal(t, 5, guildQuota(t, db, "guild-1"))
}

func TestReconcileIdempotent(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	base := now.Add(-10 * time.Hour)
	seedGuildEntitlement(t, db, "ent-plus", "guild-1", "sku_plus", true, base)
	for i := 0; i < 25; i++ {
		seedWebhook(t, db, webhookID(i), "guild-1", true, base.Add(time.Duration(i)*time.Minute))
	}

	require.NoError(t, svc.Reconcile(context.Background(), "guild-1"))
	first := activeWebhookIDs(t, db, "guild-1")

	require.NoError(t, svc.Reconcile(context.Background(), "guild-1"))
	second := activeWebhookIDs(t, db, "guild-1")

	require.Len(t, first, 20)
	assert.Equal(t, first, second, "keep-set must not change between runs")
}

func TestReconcileConcurrentCallsConverge(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	base := now.Add(-10 * time.Hour)
	seedGuildEntitlement(t, db, "ent-plus", "guild-1", "sku_plus", true, base)
	for i := 0; i < 25; i++ {
		seedWebhook(t, db, webhookID(i), "guild-1", true, base.Add(time.Duration(i)*time.Minute))
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Reconcile(context.Background(), "guild-1")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "reconcile %d", i)
	}

	assert.Equal(t, 20, guildQuota(t, db, "guild-1"))
	active := activeWebhookIDs(t, db, "guild-1")
	require.Len(t, active, 20)
	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		want = append(want, webhookID(i))
	}
	assert.Equal(t, want, active, "racing reconciles must settle on the oldest 20")
}

func TestReconcileUnknownGuildGetsDefaultRow(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestReconciler(t, db, now)

	require.NoError(t, svc.Reconcile(context.Background(), "guild-new"))
	assert.Equal(t, 5, guildQuota(t, db, "guild-new"))
}

func webhookID(i int) string {
	return "wh-" + string(rune('a'+i))
}
