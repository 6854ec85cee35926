package domain

import (
	"context"
	"errors"
)

// Service reacts to entitlement lifecycle notifications from the gateway.
// Notification fan-out is best effort; a failure there never propagates to
// the caller.
type Service interface {
	HandleCreate(ctx context.Context, entitlement Entitlement) error
	HandleUpdate(ctx context.Context, entitlement Entitlement) error
	HandleDelete(ctx context.Context, entitlement Entitlement) error
}

var (
	ErrConflict = errors.New("entitlement_exists")
	ErrNotFound = errors.New("entitlement_not_found")
)
