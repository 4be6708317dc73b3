package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/casescope/hub/internal/authority"
	"github.com/casescope/hub/internal/model"
	"github.com/casescope/hub/internal/store"
)

// generation is one complete build of the entitlement directory. A
// generation is immutable after the swap; readers see either the old one
// in full or the new one in full, never a mix.
type generation struct {
	byUser   map[string]model.Entitlement // numeric user id → entitlement
	byEmail  map[string]model.Entitlement // normalized email → entitlement
	byCase   map[string][]model.Identity  // case id → staff roster
	lastSync time.Time
}

func emptyGeneration() *generation {
	return &generation{
		byUser:  map[string]model.Entitlement{},
		byEmail: map[string]model.Entitlement{},
		byCase:  map[string][]model.Identity{},
	}
}

// SyncStats summarizes one synchronizer pass.
type SyncStats struct {
	Cases      int
	Identities int
	Failed     int
}

// Directory maps identities to their authorized cases, rebuilt wholesale
// by Sync. Reads never block writes: the current generation hangs off an
// atomic pointer and Sync swaps in a fully-built replacement.
type Directory struct {
	authority  authority.Client
	store      store.ObjectStore
	systemUser string
	systemPass string

	current atomic.Pointer[generation]
	syncing atomic.Bool
}

func NewDirectory(auth authority.Client, st store.ObjectStore, systemUser, systemPass string) *Directory {
	d := &Directory{
		authority:  auth,
		store:      st,
		systemUser: systemUser,
		systemPass: systemPass,
	}
	d.current.Store(emptyGeneration())
	return d
}

// Lookup resolves an identity's entitlement, by numeric user id first
// and normalized email second. Unknown identities get the empty
// entitlement: they can authenticate but retrieve nothing.
func (d *Directory) Lookup(userID, email string) model.Entitlement {
	gen := d.current.Load()
	if ent, ok := gen.byUser[userID]; ok {
		return ent.Clone()
	}
	if ent, ok := gen.byEmail[model.NormalizeEmail(email)]; ok {
		return ent.Clone()
	}
	return model.NewEntitlement()
}

// IdentitiesForCase returns the staff roster of a case as of last sync.
func (d *Directory) IdentitiesForCase(caseID string) []model.Identity {
	return d.current.Load().byCase[caseID]
}

// Size is the number of identities in the current generation.
func (d *Directory) Size() int {
	return len(d.current.Load().byUser)
}

// CaseCount is the number of cases in the current generation.
func (d *Directory) CaseCount() int {
	return len(d.current.Load().byCase)
}

func (d *Directory) LastSync() time.Time {
	return d.current.Load().lastSync
}

// Sync rebuilds the directory from the object store's case namespace and
// the authority's per-case rosters. Single-flight: a call that finds a
// sync already running returns model.ErrSyncInProgress without side
// effects. A system authentication failure aborts the rebuild and leaves
// the previous generation untouched; individual case failures are logged
// and skipped.
func (d *Directory) Sync(ctx context.Context) (*SyncStats, error) {
	if !d.syncing.CompareAndSwap(false, true) {
		return nil, model.ErrSyncInProgress
	}
	defer d.syncing.Store(false)

	sess, err := d.authority.Authenticate(ctx, d.systemUser, d.systemPass)
	if err != nil {
		return nil, err
	}
	token := sess.Token

	paths, err := d.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	caseIDs := caseNamespace(paths)

	scratch := emptyGeneration()
	stats := &SyncStats{Cases: len(caseIDs)}
	reauthed := false

	for _, caseID := range caseIDs {
		staff, err := d.authority.StaffForCase(ctx, caseID, token)
		if errors.Is(err, authority.ErrAuthExpired) && !reauthed {
			reauthed = true
			sess, authErr := d.authority.Authenticate(ctx, d.systemUser, d.systemPass)
			if authErr != nil {
				return nil, authErr
			}
			token = sess.Token
			staff, err = d.authority.StaffForCase(ctx, caseID, token)
		}
		switch {
		case errors.Is(err, model.ErrNotFound):
			// No roster registered for this case yet.
			staff = nil
		case err != nil:
			log.Printf("sync: case %s roster fetch failed, skipping: %v", caseID, err)
			stats.Failed++
			continue
		}

		scratch.byCase[caseID] = staff
		for _, id := range staff {
			addGrant(scratch, id, caseID)
		}
	}

	scratch.lastSync = time.Now().UTC()
	stats.Identities = len(scratch.byUser)
	d.current.Store(scratch)

	log.Printf("sync complete: cases=%d identities=%d failed=%d", stats.Cases, stats.Identities, stats.Failed)
	return stats, nil
}

// addGrant merges one roster entry into the scratch generation. An
// administrative role collapses the identity's entitlement to all cases.
func addGrant(gen *generation, id model.Identity, caseID string) {
	ent, ok := gen.byUser[id.UserID]
	if !ok {
		ent = model.NewEntitlement()
	}
	if isAdminRole(id.Role) {
		ent = model.AllEntitlement()
	} else if !ent.All() {
		ent = model.NewEntitlement(append(ent.Cases(), caseID)...)
	}
	gen.byUser[id.UserID] = ent
	if email := model.NormalizeEmail(id.Email); email != "" {
		gen.byEmail[email] = ent
	}
}

func isAdminRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin", "administrator":
		return true
	}
	return false
}

// caseNamespace keeps the distinct top-level segments that have the case
// number shape. Anything else in the store (shared folders, strays) is
// not an authorization unit and is ignored.
func caseNamespace(paths []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range paths {
		caseID, ok := model.CaseFromPath(p)
		if !ok {
			continue
		}
		if _, dup := seen[caseID]; dup {
			continue
		}
		seen[caseID] = struct{}{}
		out = append(out, caseID)
	}
	return out
}

// SyncScheduler runs Sync on a fixed interval until its context is
// cancelled. It should be launched as a goroutine from main.
type SyncScheduler struct {
	dir      *Directory
	Interval time.Duration
}

func NewSyncScheduler(dir *Directory, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{dir: dir, Interval: interval}
}

func (s *SyncScheduler) Start(ctx context.Context) {
	log.Printf("sync scheduler started (interval=%s)", s.Interval)

	// Prime the directory before the first tick.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sync scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	if _, err := s.dir.Sync(ctx); err != nil && !errors.Is(err, model.ErrSyncInProgress) {
		log.Printf("scheduled sync failed: %v", err)
	}
}
