package gateway

import (
	"context"
	"fmt"

	"github.com/trello-talk/tacows/internal/cache"
	"github.com/trello-talk/tacows/internal/clock"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	webhookdomain "github.com/trello-talk/tacows/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type handlerFunc func(ctx context.Context, ev Event) error

type DispatcherParams struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Client         Client
	EntitlementSvc entitlementdomain.Service
	WebhookRepo    webhookdomain.Repository
	Cache          *cache.DiscordCache
}

// Dispatcher drains the client's event stream through a fixed handler
// table. A single goroutine consumes the channel, so handlers for the same
// guild always run in delivery order.
type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	client      Client
	webhookRepo webhookdomain.Repository
	cache       *cache.DiscordCache

	handlers map[EventKind]handlerFunc
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	d := &Dispatcher{
		db:          p.DB,
		log:         p.Log.Named("dispatcher"),
		clock:       p.Clock,
		client:      p.Client,
		webhookRepo: p.WebhookRepo,
		cache:       p.Cache,
	}
	d.handlers = map[EventKind]handlerFunc{
		KindEntitlementCreate: func(ctx context.Context, ev Event) error {
			if ev.Entitlement == nil {
				return fmt.Errorf("dispatch %s: missing entitlement payload", ev.Kind)
			}
			return p.EntitlementSvc.HandleCreate(ctx, *ev.Entitlement)
		},
		KindEntitlementUpdate: func(ctx context.Context, ev Event) error {
			if ev.Entitlement == nil {
				return fmt.Errorf("dispatch %s: missing entitlement payload", ev.Kind)
			}
			return p.EntitlementSvc.HandleUpdate(ctx, *ev.Entitlement)
		},
		KindEntitlementDelete: func(ctx context.Context, ev Event) error {
			if ev.Entitlement == nil {
				return fmt.Errorf("dispatch %s: missing entitlement payload", ev.Kind)
			}
			return p.EntitlementSvc.HandleDelete(ctx, *ev.Entitlement)
		},
		KindGuildDelete:    d.handleGuildDelete,
		KindWebhooksUpdate: d.handleWebhooksUpdate,
		KindChannelCreate:  d.handleChannelChange,
		KindChannelUpdate:  d.handleChannelChange,
		KindChannelDelete:  d.handleChannelChange,
	}
	return d
}

// Run consumes events until the context is canceled or the client closes
// its channel. Handler errors are logged and never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.client.Events():
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	handler, ok := d.handlers[ev.Kind]
	if !ok {
		d.log.Debug("unhandled event kind", zap.String("kind", string(ev.Kind)))
		return
	}
	if err := handler(ctx, ev); err != nil {
		d.log.Error("event handler failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("guild_id", eventGuildID(ev)),
			zap.Error(err),
		)
	}
}

// eventGuildID prefers the top-level guild id; entitlement events carry
// theirs inside the payload.
func eventGuildID(ev Event) string {
	if ev.GuildID != "" {
		return ev.GuildID
	}
	if ev.Entitlement != nil && ev.Entitlement.GuildID != nil {
		return *ev.Entitlement.GuildID
	}
	return ""
}

// Leaving a guild orphans its webhooks; they are deactivated in bulk so a
// later re-join starts clean.
func (d *Dispatcher) handleGuildDelete(ctx context.Context, ev Event) error {
	deactivated, err := d.webhookRepo.DeactivateByGuild(ctx, d.db, ev.GuildID, d.clock.Now())
	if err != nil {
		return fmt.Errorf("deactivate webhooks for departed guild %s: %w", ev.GuildID, err)
	}
	if deactivated > 0 {
		d.log.Info("guild departed, webhooks deactivated",
			zap.String("guild_id", ev.GuildID),
			zap.Int64("deactivated_count", deactivated),
		)
	}
	d.cache.InvalidateWebhooks(ctx, ev.GuildID)
	d.cache.InvalidateChannels(ctx, ev.GuildID)
	return nil
}

func (d *Dispatcher) handleWebhooksUpdate(ctx context.Context, ev Event) error {
	d.cache.InvalidateWebhooks(ctx, ev.GuildID)
	return nil
}

func (d *Dispatcher) handleChannelChange(ctx context.Context, ev Event) error {
	d.cache.InvalidateChannels(ctx, ev.GuildID)
	return nil
}
