// Package stats refreshes operational gauges from the gateway connection
// and the webhook store.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trello-talk/tacows/internal/gateway"
	webhookdomain "github.com/trello-talk/tacows/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRefreshInterval = time.Minute

var (
	gaugesOnce sync.Once
	gauges     *connectionGauges
)

type connectionGauges struct {
	guilds         prometheus.Gauge
	shards         prometheus.Gauge
	activeWebhooks prometheus.Gauge
}

func connection() *connectionGauges {
	gaugesOnce.Do(func() {
		gauges = newConnectionGauges(prometheus.DefaultRegisterer)
	})
	return gauges
}

func newConnectionGauges(reg prometheus.Registerer) *connectionGauges {
	g := &connectionGauges{
		guilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacows_guilds",
			Help: "Guilds currently visible on the gateway connection.",
		}),
		shards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacows_shards",
			Help: "Gateway shard count.",
		}),
		activeWebhooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacows_webhooks_active",
			Help: "Active webhooks across all guilds.",
		}),
	}
	reg.MustRegister(g.guilds, g.shards, g.activeWebhooks)
	return g
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Client      gateway.Client
	WebhookRepo webhookdomain.Repository
}

type Exporter struct {
	db          *gorm.DB
	log         *zap.Logger
	client      gateway.Client
	webhookRepo webhookdomain.Repository
	interval    time.Duration
}

func New(p Params) *Exporter {
	return &Exporter{
		db:          p.DB,
		log:         p.Log.Named("stats"),
		client:      p.Client,
		webhookRepo: p.WebhookRepo,
		interval:    defaultRefreshInterval,
	}
}

func (e *Exporter) Refresh(ctx context.Context) {
	snapshot := e.client.Snapshot()
	g := connection()
	g.guilds.Set(float64(snapshot.Guilds))
	g.shards.Set(float64(snapshot.Shards))

	count, err := e.webhookRepo.CountAllActive(ctx, e.db)
	if err != nil {
		e.log.Warn("webhook count refresh failed", zap.Error(err))
		return
	}
	g.activeWebhooks.Set(float64(count))
}

func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
