// Package identity resolves authenticated principals to accounts and keeps
// active sessions gated on admin approval for their whole lifetime.
package identity

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/watch"
)

// Store is the account read surface the resolver needs.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
}

// Resolver turns verified principal ids into accounts and sessions.
type Resolver struct {
	store      Store
	watcher    *watch.Watcher
	graceDelay time.Duration
	logger     *log.Logger
}

// NewResolver creates a Resolver. graceDelay is how long a revoked session is
// allowed to settle before it is terminated; zero means immediate.
func NewResolver(store Store, watcher *watch.Watcher, graceDelay time.Duration, logger *log.Logger) *Resolver {
	if store == nil {
		panic("identity.NewResolver: store is nil")
	}
	if watcher == nil {
		panic("identity.NewResolver: watcher is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Resolver{store: store, watcher: watcher, graceDelay: graceDelay, logger: logger}
}

// Resolve fetches the account for a verified principal id. It fails with
// domain.ErrAccountNotFound when no account exists and domain.ErrNotApproved
// when the admin-level gate is closed; in both cases the caller must
// terminate the session.
func (r *Resolver) Resolve(ctx context.Context, principalID string) (domain.Account, error) {
	acc, err := r.store.GetAccount(ctx, principalID)
	if err != nil {
		return domain.Account{}, err
	}
	if acc == nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if !acc.GateApproved() {
		return domain.Account{}, domain.ErrNotApproved
	}
	return *acc, nil
}

// Principal derives the visibility principal from a resolved account.
func Principal(acc domain.Account) domain.Principal {
	return domain.Principal{
		ID:              acc.ID,
		Role:            acc.Role,
		LinkedManagerID: acc.LinkedManagerID,
		LinkStatus:      acc.Status,
	}
}
