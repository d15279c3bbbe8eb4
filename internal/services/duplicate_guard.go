package services

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DuplicateGuard answers "is there already a live note for this message?".
// Recently created ids are remembered in-process so redelivered events
// skip the store round trip.
type DuplicateGuard struct {
	store  NoteStore
	recent *cache.Cache
}

// NewDuplicateGuard creates a guard that remembers created ids for ttl
func NewDuplicateGuard(store NoteStore, ttl time.Duration) *DuplicateGuard {
	return &DuplicateGuard{
		store:  store,
		recent: cache.New(ttl, 2*ttl),
	}
}

// IsDuplicate reports whether a live note exists for externalID
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, externalID string) (bool, error) {
	if _, found := g.recent.Get(externalID); found {
		return true, nil
	}
	exists, err := g.store.Exists(ctx, externalID)
	if err != nil {
		return false, err
	}
	if exists {
		g.recent.SetDefault(externalID, struct{}{})
	}
	return exists, nil
}

// Remember records that a note was just created for externalID
func (g *DuplicateGuard) Remember(externalID string) {
	g.recent.SetDefault(externalID, struct{}{})
}

// Forget drops externalID after its note was archived so a restore can recreate it
func (g *DuplicateGuard) Forget(externalID string) {
	g.recent.Delete(externalID)
}
