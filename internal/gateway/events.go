// Package gateway bridges Discord gateway traffic into the service: a
// Client produces a flat event stream and a Dispatcher drains it through an
// explicit handler table.
package gateway

import (
	"context"

	entitlementdomain "github.com/trello-talk/tacows/internal/entitlement/domain"
)

type EventKind string

const (
	KindEntitlementCreate EventKind = "ENTITLEMENT_CREATE"
	KindEntitlementUpdate EventKind = "ENTITLEMENT_UPDATE"
	KindEntitlementDelete EventKind = "ENTITLEMENT_DELETE"
	KindGuildDelete       EventKind = "GUILD_DELETE"
	KindWebhooksUpdate    EventKind = "WEBHOOKS_UPDATE"
	KindChannelCreate     EventKind = "CHANNEL_CREATE"
	KindChannelUpdate     EventKind = "CHANNEL_UPDATE"
	KindChannelDelete     EventKind = "CHANNEL_DELETE"
)

// Event is the flattened form of a gateway payload; only the fields the
// handlers consume survive translation.
type Event struct {
	Kind        EventKind
	GuildID     string
	ChannelID   string
	Entitlement *entitlementdomain.Entitlement
}

// Snapshot is a point-in-time read of connection-level counters, consumed
// by the stats exporter and the bot-list poster.
type Snapshot struct {
	Guilds int
	Shards int
}

// Client is the gateway connection. Implementations push translated events
// into the channel returned by Events until Close.
type Client interface {
	Open(ctx context.Context) error
	Close() error
	Events() <-chan Event
	Snapshot() Snapshot
}
