package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/trello-talk/tacows/internal/benefit"
	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	guilddomain "github.com/trello-talk/tacows/internal/guild/domain"
	"github.com/trello-talk/tacows/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	cfg        config.Config
	quotas     *config.QuotaConfigHolder
	clock      clock.Clock
	repo       entitlementdomain.Repository
	guildRepo  guilddomain.Repository
	benefitSvc benefit.Service
	notifier   notify.Notifier
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Quotas     *config.QuotaConfigHolder
	Clock      clock.Clock
	Repo       entitlementdomain.Repository
	GuildRepo  guilddomain.Repository
	BenefitSvc benefit.Service
	Notifier   notify.Notifier
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		cfg:        p.Cfg,
		quotas:     p.Quotas,
		clock:      p.Clock,
		repo:       p.Repo,
		guildRepo:  p.GuildRepo,
		benefitSvc: p.BenefitSvc,
		notifier:   p.Notifier,
	}
}

// HandleCreate persists a newly observed entitlement and applies its benefit
// to the owning guild without a full rescan. A create racing an earlier
// create for the same id degrades to an overwrite.
func (s *Service) HandleCreate(ctx context.Context, entitlement entitlementdomain.Entitlement) error {
	now := s.clock.Now()
	entitlement.Active = entitlement.ActiveAt(now)
	entitlement.CreatedAt = now
	entitlement.UpdatedAt = now

	err := s.repo.Insert(ctx, s.db, &entitlement)
	if errors.Is(err, entitlementdomain.ErrConflict) {
		err = s.repo.Upsert(ctx, s.db, &entitlement)
	}
	if err != nil {
		if entitlement.IsTest() {
			s.log.Debug("test entitlement create not persisted",
				zap.String("entitlement_id", entitlement.ID),
				zap.Error(err),
			)
			return nil
		}
		s.log.Error("entitlement create failed",
			zap.String("entitlement_id", entitlement.ID),
			zap.Error(err),
		)
		return fmt.Errorf("create entitlement %s: %w", entitlement.ID, err)
	}

	if s.cfg.EnforcementEnabled() && entitlement.GuildID != nil && entitlement.Active {
		if quota, ok := s.quotas.Current().QuotaForSKU(entitlement.SKUID); ok {
			if err := s.guildRepo.UpsertMaxWebhooks(ctx, s.db, *entitlement.GuildID, quota, now); err != nil {
				s.log.Error("apply benefit failed",
					zap.String("guild_id", *entitlement.GuildID),
					zap.String("sku_id", entitlement.SKUID),
					zap.Error(err),
				)
			} else {
				s.log.Info("benefit applied",
					zap.String("guild_id", *entitlement.GuildID),
					zap.String("sku_id", entitlement.SKUID),
					zap.Int("max_webhooks", quota),
				)
			}
		}
	}

	s.fireNotification(ctx, notify.EventCreated, entitlement)
	return nil
}

// HandleUpdate upserts by id since updates can race creates. An update that
// leaves the entitlement inactive forces a full reconcile: the guild's quota
// must be recomputed from the remaining active set, not this one record.
func (s *Service) HandleUpdate(ctx context.Context, entitlement entitlementdomain.Entitlement) error {
	now := s.clock.Now()
	entitlement.Active = entitlement.ActiveAt(now)
	entitlement.CreatedAt = now
	entitlement.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, &entitlement); err != nil {
		if entitlement.IsTest() {
			s.log.Debug("test entitlement update not persisted",
				zap.String("entitlement_id", entitlement.ID),
				zap.Error(err),
			)
			return nil
		}
		s.log.Error("entitlement update failed",
			zap.String("entitlement_id", entitlement.ID),
			zap.Error(err),
		)
		return fmt.Errorf("update entitlement %s: %w", entitlement.ID, err)
	}

	if s.cfg.EnforcementEnabled() && !entitlement.Active && entitlement.GuildID != nil {
		if err := s.benefitSvc.Reconcile(ctx, *entitlement.GuildID); err != nil {
			s.log.Error("reconcile after update failed",
				zap.String("guild_id", *entitlement.GuildID),
				zap.Error(err),
			)
		}
	}

	s.fireNotification(ctx, notify.EventUpdated, entitlement)
	return nil
}

// HandleDelete removes the record and reconciles the guild from whatever
// active entitlements remain.
func (s *Service) HandleDelete(ctx context.Context, entitlement entitlementdomain.Entitlement) error {
	err := s.repo.Delete(ctx, s.db, entitlement.ID)
	if errors.Is(err, entitlementdomain.ErrNotFound) {
		// Nothing was removed, so nothing needs reconciling either way.
		if entitlement.IsTest() {
			s.log.Debug("test entitlement delete target missing",
				zap.String("entitlement_id", entitlement.ID),
			)
			return nil
		}
		s.log.Warn("entitlement delete target missing",
			zap.String("entitlement_id", entitlement.ID),
		)
		return fmt.Errorf("delete entitlement %s: %w", entitlement.ID, err)
	}
	if err != nil {
		s.log.Error("entitlement delete failed",
			zap.String("entitlement_id", entitlement.ID),
			zap.Error(err),
		)
		return fmt.Errorf("delete entitlement %s: %w", entitlement.ID, err)
	}

	if s.cfg.EnforcementEnabled() && entitlement.GuildID != nil {
		if err := s.benefitSvc.Reconcile(ctx, *entitlement.GuildID); err != nil {
			s.log.Error("reconcile after delete failed",
				zap.String("guild_id", *entitlement.GuildID),
				zap.Error(err),
			)
		}
	}

	s.fireNotification(ctx, notify.EventDeleted, entitlement)
	return nil
}

// fireNotification sends the outbound alert and discards any transport
// error; notifications never block or fail the primary operation.
func (s *Service) fireNotification(ctx context.Context, event notify.Event, entitlement entitlementdomain.Entitlement) {
	if err := s.notifier.EntitlementEvent(ctx, event, entitlement); err != nil {
		s.log.Debug("entitlement notification dropped",
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}
