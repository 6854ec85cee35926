package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/trello-talk/tacows/internal/config"
	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
	"go.uber.org/zap"
)

const eventBuffer = 256

// discordClient adapts a discordgo session to the Client interface. The
// session's callback goroutines translate payloads and push them into a
// single buffered channel; ordering within the channel is whatever the
// gateway delivered.
type discordClient struct {
	log     *zap.Logger
	session *discordgo.Session
	events  chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func NewDiscordClient(cfg config.Config, log *zap.Logger) (Client, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("gateway: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildWebhooks

	c := &discordClient{
		log:     log.Named("gateway"),
		session: session,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	c.registerHandlers()
	return c, nil
}

func (c *discordClient) registerHandlers() {
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.EntitlementCreate) {
		c.push(Event{Kind: KindEntitlementCreate, Entitlement: fromDiscordEntitlement(e.Entitlement)})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.EntitlementUpdate) {
		c.push(Event{Kind: KindEntitlementUpdate, Entitlement: fromDiscordEntitlement(e.Entitlement)})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.EntitlementDelete) {
		c.push(Event{Kind: KindEntitlementDelete, Entitlement: fromDiscordEntitlement(e.Entitlement)})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildDelete) {
		// Unavailable means an outage, not a removal; the guild comes back.
		if e.Unavailable {
			return
		}
		c.push(Event{Kind: KindGuildDelete, GuildID: e.ID})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.WebhooksUpdate) {
		c.push(Event{Kind: KindWebhooksUpdate, GuildID: e.GuildID, ChannelID: e.ChannelID})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) {
		if !postableChannel(e.Channel.Type) {
			return
		}
		c.push(Event{Kind: KindChannelCreate, GuildID: e.GuildID, ChannelID: e.ID})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
		if !postableChannel(e.Channel.Type) {
			return
		}
		c.push(Event{Kind: KindChannelUpdate, GuildID: e.GuildID, ChannelID: e.ID})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) {
		if !postableChannel(e.Channel.Type) {
			return
		}
		c.push(Event{Kind: KindChannelDelete, GuildID: e.GuildID, ChannelID: e.ID})
	})
}

func (c *discordClient) push(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *discordClient) Open(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("gateway: open session: %w", err)
	}
	c.log.Info("gateway connected",
		zap.Int("shard_count", c.session.ShardCount),
	)
	return nil
}

func (c *discordClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.session.Close()
}

func (c *discordClient) Events() <-chan Event {
	return c.events
}

func (c *discordClient) Snapshot() Snapshot {
	shards := c.session.ShardCount
	if shards <= 0 {
		shards = 1
	}
	c.session.State.RLock()
	guilds := len(c.session.State.Guilds)
	c.session.State.RUnlock()
	return Snapshot{
		Guilds: guilds,
		Shards: shards,
	}
}

// Only channels a webhook can post to are worth tracking in the cache.
func postableChannel(channelType discordgo.ChannelType) bool {
	return channelType == discordgo.ChannelTypeGuildText || channelType == discordgo.ChannelTypeGuildNews
}

func fromDiscordEntitlement(e *discordgo.Entitlement) *entitlementdomain.Entitlement {
	if e == nil {
		return nil
	}
	entitlement := &entitlementdomain.Entitlement{
		ID:       e.ID,
		SKUID:    e.SKUID,
		Type:     entitlementdomain.Type(e.Type),
		StartsAt: e.StartsAt,
		EndsAt:   e.EndsAt,
	}
	if e.GuildID != "" {
		guildID := e.GuildID
		entitlement.GuildID = &guildID
	}
	if e.UserID != "" {
		userID := e.UserID
		entitlement.UserID = &userID
	}
	return entitlement
}
