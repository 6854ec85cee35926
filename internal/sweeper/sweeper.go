// Package sweeper runs the periodic expiry pass: entitlements whose end
// date is in the past are flipped inactive and every guild they touched is
// reconciled from whatever active entitlements remain.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/trello-talk/tacows/internal/benefit"
	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	obsmetrics "github.com/trello-talk/tacows/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("sweeper: invalid configuration")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	AppCfg     config.Config
	EntRepo    entitlementdomain.Repository
	BenefitSvc benefit.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Sweeper struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	appCfg     config.Config
	genID      *snowflake.Node
	clock      clock.Clock
	entRepo    entitlementdomain.Repository
	benefitSvc benefit.Service
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.EntRepo == nil || p.BenefitSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Sweeper{
		db:         p.DB,
		log:        p.Log.Named("sweeper").With(zap.String("component", "sweeper")),
		cfg:        cfg,
		appCfg:     p.AppCfg,
		genID:      p.GenID,
		clock:      p.Clock,
		entRepo:    p.EntRepo,
		benefitSvc: p.BenefitSvc,
	}, nil
}

func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	jobMetrics := obsmetrics.Jobs()
	jobMetrics.IncJobRun(name)

	err := fn(ctx)
	jobMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		jobMetrics.IncJobTimeout(name)
	}
	jobMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Sweeper) RunOnce(parent context.Context) error {
	return s.runJob(parent, "expire_entitlements", s.cfg.JobTimeout, s.ExpireEntitlementsJob)
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ExpireEntitlementsJob deactivates every active entitlement whose end date
// has passed, then reconciles each affected guild. A failed bulk deactivation
// aborts the tick; the next interval retries from the same store state. A
// failed per-guild reconcile never blocks the remaining guilds.
func (s *Sweeper) ExpireEntitlementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "expire_entitlements")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	now := s.clock.Now()

	expired, err := s.entRepo.FindExpiredActive(ctx, s.db, now)
	if err != nil {
		s.logSweepError(ctx, run, "sweeper.fetch.failed", err)
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	ids := make([]string, 0, len(expired))
	for _, entitlement := range expired {
		ids = append(ids, entitlement.ID)
	}
	swept, err := s.entRepo.MarkInactive(ctx, s.db, ids, now)
	if err != nil {
		s.logSweepError(ctx, run, "sweeper.deactivate.failed", err,
			zap.Int("expired_count", len(ids)),
		)
		return err
	}
	run.AddProcessed(int(swept))
	obsmetrics.Jobs().AddEntitlementsSwept(int(swept))
	s.logger(ctx).Info("entitlements expired",
		zap.String("run_id", run.runID),
		zap.Int64("swept_count", swept),
	)

	if !s.appCfg.EnforcementEnabled() {
		return nil
	}

	var jobErr error
	for _, guildID := range distinctGuilds(expired) {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		if err := s.benefitSvc.Reconcile(ctx, guildID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSweepError(ctx, run, "sweeper.reconcile.failed", err,
				zap.String("guild_id", guildID),
			)
		}
	}
	return jobErr
}

func distinctGuilds(entitlements []entitlementdomain.Entitlement) []string {
	seen := make(map[string]struct{}, len(entitlements))
	guilds := make([]string, 0, len(entitlements))
	for _, entitlement := range entitlements {
		if entitlement.GuildID == nil || *entitlement.GuildID == "" {
			continue
		}
		if _, ok := seen[*entitlement.GuildID]; ok {
			continue
		}
		seen[*entitlement.GuildID] = struct{}{}
		guilds = append(guilds, *entitlement.GuildID)
	}
	sort.Strings(guilds)
	return guilds
}
