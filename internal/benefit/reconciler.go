// Package benefit derives each guild's webhook quota from its active
// entitlements and enforces it against the webhook table.
package benefit

import (
	"context"
	"fmt"

	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	guilddomain "github.com/trello-talk/tacows/internal/guild/domain"
	obsmetrics "github.com/trello-talk/tacows/internal/observability/metrics"
	webhookdomain "github.com/trello-talk/tacows/internal/webhook/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service recomputes and enforces a guild's webhook quota. Safe to call
// concurrently for different guilds and to re-run redundantly for the same
// guild: every call re-reads the store and converges on the same state.
type Service interface {
	Reconcile(ctx context.Context, guildID string) error
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Quotas      *config.QuotaConfigHolder
	EntRepo     entitlementdomain.Repository
	GuildRepo   guilddomain.Repository
	WebhookRepo webhookdomain.Repository
}

type Reconciler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	quotas      *config.QuotaConfigHolder
	entRepo     entitlementdomain.Repository
	guildRepo   guilddomain.Repository
	webhookRepo webhookdomain.Repository
	tracer      trace.Tracer
}

func New(p Params) Service {
	return &Reconciler{
		db:          p.DB,
		log:         p.Log.Named("benefit"),
		clock:       p.Clock,
		quotas:      p.Quotas,
		entRepo:     p.EntRepo,
		guildRepo:   p.GuildRepo,
		webhookRepo: p.WebhookRepo,
		tracer:      otel.Tracer("tacows/benefit"),
	}
}

// Reconcile re-reads the guild's active entitlements, derives the quota,
// persists it and trims the active webhook set down to the quota. Quota
// upsert and enforcement are two independent writes; a failure between them
// heals on the next run rather than rolling back.
func (s *Reconciler) Reconcile(ctx context.Context, guildID string) error {
	ctx, span := s.tracer.Start(ctx, "benefit.reconcile",
		trace.WithAttributes(attribute.String("guild_id", guildID)))
	defer span.End()

	now := s.clock.Now()
	jobMetrics := obsmetrics.Jobs()

	entitlements, err := s.entRepo.FindActiveByGuild(ctx, s.db, guildID)
	if err != nil {
		jobMetrics.IncReconcile("error")
		return fmt.Errorf("load active entitlements: %w", err)
	}

	skus := make([]string, 0, len(entitlements))
	for _, e := range entitlements {
		skus = append(skus, e.SKUID)
	}
	quota := s.quotas.Current().Resolve(skus)

	existing, err := s.guildRepo.FindByID(ctx, s.db, guildID)
	if err != nil {
		jobMetrics.IncReconcile("error")
		return fmt.Errorf("load guild quota: %w", err)
	}

	if err := s.guildRepo.UpsertMaxWebhooks(ctx, s.db, guildID, quota, now); err != nil {
		jobMetrics.IncReconcile("error")
		return fmt.Errorf("upsert guild quota: %w", err)
	}

	keep, err := s.webhookRepo.FindOldestActive(ctx, s.db, guildID, quota)
	if err != nil {
		jobMetrics.IncReconcile("error")
		return fmt.Errorf("load keep-set: %w", err)
	}
	keepIDs := make([]string, 0, len(keep))
	for _, w := range keep {
		keepIDs = append(keepIDs, w.ID)
	}

	deactivated, err := s.webhookRepo.DeactivateAllExcept(ctx, s.db, guildID, keepIDs, now)
	if err != nil {
		jobMetrics.IncReconcile("error")
		return fmt.Errorf("enforce quota: %w", err)
	}

	jobMetrics.IncReconcile("ok")
	jobMetrics.AddWebhooksDeactivated(int(deactivated))

	log := s.log.With(
		zap.String("guild_id", guildID),
		zap.Int("max_webhooks", quota),
		zap.Int("active_entitlements", len(entitlements)),
	)
	if existing != nil && existing.MaxWebhooks != quota {
		log.Info("benefit.quota_changed",
			zap.Int("previous_max_webhooks", existing.MaxWebhooks),
		)
	}
	if deactivated > 0 {
		log.Info("benefit.enforced", zap.Int64("webhooks_deactivated", deactivated))
	} else {
		log.Debug("benefit.reconciled")
	}
	return nil
}
