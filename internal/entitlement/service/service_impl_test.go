package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	entitlementrepo "github.com/trello-talk/tacows/internal/entitlement/repository"
	guildrepo "github.com/trello-talk/tacows/internal/guild/repository"
	"github.com/trello-talk/tacows/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockBenefitSvc struct {
	calls []string
	err   error
}

func (m *mockBenefitSvc) Reconcile(ctx context.Context, guildID string) error {
	m.calls = append(m.calls, guildID)
	return m.err
}

type mockNotifier struct {
	events []notify.Event
}

func (m *mockNotifier) EntitlementEvent(ctx context.Context, event notify.Event, entitlement entitlementdomain.Entitlement) error {
	m.events = append(m.events, event)
	return nil
}

type failingRepo struct {
	entitlementdomain.Repository
}

func (f *failingRepo) Insert(ctx context.Context, db *gorm.DB, e *entitlementdomain.Entitlement) error {
	return errors.New("store unavailable")
}

func (f *failingRepo) Upsert(ctx context.Context, db *gorm.DB, e *entitlementdomain.Entitlement) error {
	return errors.New("store unavailable")
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
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
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

type fixture struct {
	svc      entitlementdomain.Service
	db       *gorm.DB
	benefit  *mockBenefitSvc
	notifier *mockNotifier
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, repo entitlementdomain.Repository) *fixture {
	t.Helper()
	db := openTestDB(t)
	cfg := config.Config{PlusSKUID: "sku_plus", ProSKUID: "sku_pro"}
	holder, err := config.NewQuotaConfigHolder(cfg)
	if err != nil {
		t.Fatalf("quota holder: %v", err)
	}
	if repo == nil {
		repo = entitlementrepo.Provide()
	}
	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	benefitSvc := &mockBenefitSvc{}
	notifier := &mockNotifier{}
	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		Cfg:        cfg,
		Quotas:     holder,
		Clock:      fakeClock,
		Repo:       repo,
		GuildRepo:  guildrepo.Provide(),
		BenefitSvc: benefitSvc,
		Notifier:   notifier,
	})
	return &fixture{svc: svc, db: db, benefit: benefitSvc, notifier: notifier, clock: fakeClock}
}

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }

func TestHandleCreateAppliesBenefitDirectly(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	err := f.svc.HandleCreate(context.Background(), entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_plus",
		Type:     entitlementdomain.TypeApplicationSubscription,
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now.Add(-time.Minute)),
		EndsAt:   timeptr(now.Add(30 * 24 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("HandleCreate: %v", err)
	}

	var quota int
	if err := f.db.Raw(`SELECT max_webhooks FROM guilds WHERE id = ?`, "guild-1").Scan(&quota).Error; err != nil {
		t.Fatalf("read quota: %v", err)
	}
	if quota != 20 {
		t.Fatalf("guild quota = %d, want 20", quota)
	}
	// Create applies the tier directly, no full rescan.
	if len(f.benefit.calls) != 0 {
		t.Fatalf("unexpected reconcile calls: %v", f.benefit.calls)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notify.EventCreated {
		t.Fatalf("events = %v, want [created]", f.notifier.events)
	}
}

func TestHandleCreateDuplicateDegradesToOverwrite(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	e := entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_plus",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now),
	}
	if err := f.svc.HandleCreate(context.Background(), e); err != nil {
		t.Fatalf("first create: %v", err)
	}
	e.SKUID = "sku_pro"
	if err := f.svc.HandleCreate(context.Background(), e); err != nil {
		t.Fatalf("duplicate create: %v", err)
	}

	var skuID string
	if err := f.db.Raw(`SELECT sku_id FROM entitlements WHERE id = ?`, "ent-1").Scan(&skuID).Error; err != nil {
		t.Fatalf("read sku: %v", err)
	}
	if skuID != "sku_pro" {
		t.Fatalf("sku = %s, want sku_pro after overwrite", skuID)
	}
}

func TestHandleCreateTestEntitlementSwallowsStoreErrors(t *testing.T) {
	f := newFixture(t, &failingRepo{})

	// StartsAt nil marks a test entitlement: persistence failure is dropped.
	err := f.svc.HandleCreate(context.Background(), entitlementdomain.Entitlement{
		ID:      "ent-test",
		SKUID:   "sku_plus",
		GuildID: strptr("guild-1"),
	})
	if err != nil {
		t.Fatalf("test entitlement create: %v, want nil", err)
	}
	if len(f.benefit.calls) != 0 {
		t.Fatalf("failed create must not reconcile, got %v", f.benefit.calls)
	}
}

func TestHandleCreateRealEntitlementReportsStoreErrors(t *testing.T) {
	f := newFixture(t, &failingRepo{})
	now := f.clock.Now()

	err := f.svc.HandleCreate(context.Background(), entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_plus",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now),
	})
	if err == nil {
		t.Fatal("real entitlement create must surface store errors")
	}
	if len(f.notifier.events) != 0 {
		t.Fatalf("failed create must not notify, got %v", f.notifier.events)
	}
}

func TestHandleUpdateInactiveTriggersReconcile(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	err := f.svc.HandleUpdate(context.Background(), entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_plus",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now.Add(-time.Hour)),
		EndsAt:   timeptr(now.Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(f.benefit.calls) != 1 || f.benefit.calls[0] != "guild-1" {
		t.Fatalf("reconcile calls = %v, want [guild-1]", f.benefit.calls)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != notify.EventUpdated {
		t.Fatalf("events = %v, want [updated]", f.notifier.events)
	}
}

func TestHandleUpdateStillActiveSkipsReconcile(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	err := f.svc.HandleUpdate(context.Background(), entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_plus",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now.Add(-time.Hour)),
		EndsAt:   timeptr(now.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(f.benefit.calls) != 0 {
		t.Fatalf("active update must not reconcile, got %v", f.benefit.calls)
	}
}

func TestHandleDeleteReconcilesGuild(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	e := entitlementdomain.Entitlement{
		ID:       "ent-1",
		SKUID:    "sku_pro",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now),
	}
	if err := f.svc.HandleCreate(context.Background(), e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.HandleDelete(context.Background(), e); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.benefit.calls) != 1 || f.benefit.calls[0] != "guild-1" {
		t.Fatalf("reconcile calls = %v, want [guild-1]", f.benefit.calls)
	}
	if last := f.notifier.events[len(f.notifier.events)-1]; last != notify.EventDeleted {
		t.Fatalf("last event = %v, want deleted", last)
	}
}

func TestHandleDeleteNotFound(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	// Real entitlement: not-found is reported and nothing reconciles.
	err := f.svc.HandleDelete(context.Background(), entitlementdomain.Entitlement{
		ID:       "ent-missing",
		SKUID:    "sku_plus",
		GuildID:  strptr("guild-1"),
		StartsAt: timeptr(now),
	})
	if !errors.Is(err, entitlementdomain.ErrNotFound) {
		t.Fatalf("delete missing: got %v, want ErrNotFound", err)
	}
	if len(f.benefit.calls) != 0 {
		t.Fatalf("missing delete must not reconcile, got %v", f.benefit.calls)
	}

	// Test entitlement: not-found is success-equivalent.
	err = f.svc.HandleDelete(context.Background(), entitlementdomain.Entitlement{
		ID:      "ent-test-missing",
		SKUID:   "sku_plus",
		GuildID: strptr("guild-1"),
	})
	if err != nil {
		t.Fatalf("test delete missing: %v, want nil", err)
	}
}
