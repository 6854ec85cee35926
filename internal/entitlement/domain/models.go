// Package domain contains persistence models for Discord entitlements.
package domain

import "time"

// Type mirrors Discord's entitlement type enumeration.
type Type int

const (
	TypePurchase                Type = 1
	TypePremiumSubscription     Type = 2
	TypeDeveloperGift           Type = 3
	TypeTestModePurchase        Type = 4
	TypeFreePurchase            Type = 5
	TypeUserGift                Type = 6
	TypePremiumPurchase         Type = 7
	TypeApplicationSubscription Type = 8
)

// Label returns a human-readable name for notification panels.
func (t Type) Label() string {
	switch t {
	case TypePurchase:
		return "Purchase"
	case TypePremiumSubscription:
		return "Premium Subscription"
	case TypeDeveloperGift:
		return "Developer Gift"
	case TypeTestModePurchase:
		return "Test Mode Purchase"
	case TypeFreePurchase:
		return "Free Purchase"
	case TypeUserGift:
		return "User Gift"
	case TypePremiumPurchase:
		return "Premium Purchase"
	case TypeApplicationSubscription:
		return "Application Subscription"
	default:
		return "Unknown"
	}
}

// Entitlement captures a guild's or user's grant of a purchasable benefit.
// Active is computed from EndsAt at write time and can go stale; the expiry
// sweep exists to correct exactly that.
type Entitlement struct {
	ID        string  `gorm:"primaryKey"`
	SKUID     string  `gorm:"column:sku_id;not null"`
	Type      Type    `gorm:"column:entitlement_type;not null"`
	GuildID   *string `gorm:"index"`
	UserID    *string `gorm:""`
	Active    bool    `gorm:"not null;default:true"`
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "entitlements" }

// IsTest reports whether this is a test/simulated entitlement. Discord
// sends those without a start timestamp.
func (e Entitlement) IsTest() bool { return e.StartsAt == nil }

// ActiveAt computes liveness from the expiry timestamp. A nil EndsAt means
// the entitlement is perpetual.
func (e Entitlement) ActiveAt(now time.Time) bool {
	return e.EndsAt == nil || e.EndsAt.After(now)
}
