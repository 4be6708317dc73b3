package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/casescope/hub/internal/authority"
	"github.com/casescope/hub/internal/engine"
	"github.com/casescope/hub/internal/model"
	"github.com/casescope/hub/internal/store"
)

// stubAuthority is an in-memory case-management authority.
type stubAuthority struct {
	mu          sync.Mutex
	authErr     error
	authGate    chan struct{} // when set, Authenticate blocks until it closes
	authEntered chan struct{} // when set, signaled as Authenticate begins
	authCalls   int
	rosterCalls int
	rosters     map[string][]model.Identity
	rosterErr   map[string]error
	// tokens issued as "t1", "t2", ...; staleTokens reject with ErrAuthExpired
	staleTokens map[string]bool
	users       map[string]string // username → userID for Login tests
}

func newStubAuthority() *stubAuthority {
	return &stubAuthority{
		rosters:     map[string][]model.Identity{},
		rosterErr:   map[string]error{},
		staleTokens: map[string]bool{},
		users:       map[string]string{},
	}
}

func (a *stubAuthority) Authenticate(_ context.Context, username, password string) (*authority.Session, error) {
	if a.authEntered != nil {
		a.authEntered <- struct{}{}
	}
	if a.authGate != nil {
		<-a.authGate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authErr != nil {
		return nil, a.authErr
	}
	a.authCalls++
	userID := a.users[username]
	if userID == "" {
		userID = "sys"
	}
	return &authority.Session{UserID: userID, Token: fmt.Sprintf("t%d", a.authCalls)}, nil
}

func (a *stubAuthority) StaffForCase(_ context.Context, caseID, token string) ([]model.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rosterCalls++
	if a.staleTokens[token] {
		return nil, authority.ErrAuthExpired
	}
	if err := a.rosterErr[caseID]; err != nil {
		return nil, err
	}
	roster, ok := a.rosters[caseID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return roster, nil
}

// stubStore is an in-memory object store.
type stubStore struct {
	mu          sync.Mutex
	paths       []string
	listCalls   int
	existsCalls int
	signCalls   int
}

func newStubStore(paths ...string) *stubStore {
	return &stubStore{paths: paths}
}

func (s *stubStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []string
	for _, p := range s.paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsCalls++
	for _, p := range s.paths {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) Properties(_ context.Context, path string) (*store.ObjectInfo, error) {
	ok, _ := s.Exists(context.Background(), path)
	if !ok {
		return nil, model.ErrNotFound
	}
	return &store.ObjectInfo{Path: path, Size: 1024, ContentType: "application/pdf"}, nil
}

func (s *stubStore) Read(_ context.Context, path string, _, _ int64) ([]byte, error) {
	ok, _ := s.Exists(context.Background(), path)
	if !ok {
		return nil, model.ErrNotFound
	}
	return []byte("content of " + path), nil
}

func (s *stubStore) SignURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signCalls++
	return fmt.Sprintf("https://store.example/%s?expires=%d", path, int64(ttl.Seconds())), nil
}

// stubIndex is a canned retrieval index.
type stubIndex struct {
	mu          sync.Mutex
	results     []engine.SearchResult
	searchCalls int
	err         error
}

func (i *stubIndex) Search(_ context.Context, _, _ string, _ int) ([]engine.SearchResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.searchCalls++
	if i.err != nil {
		return nil, i.err
	}
	return i.results, nil
}

// stubGenerator fabricates threads and canned runs.
type stubGenerator struct {
	mu         sync.Mutex
	created    int
	deleted    []string
	deleteErr  error
	runResult  *engine.RunResult
	runErr     error
	lastFilter string
	lastInstr  string
}

func (g *stubGenerator) CreateThread(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created++
	return fmt.Sprintf("thread-%d", g.created), nil
}

func (g *stubGenerator) DeleteThread(_ context.Context, threadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, threadID)
	return g.deleteErr
}

func (g *stubGenerator) Run(_ context.Context, _, _, filter, instructions string) (*engine.RunResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFilter = filter
	g.lastInstr = instructions
	if g.runErr != nil {
		return nil, g.runErr
	}
	if g.runResult != nil {
		return g.runResult, nil
	}
	return &engine.RunResult{Text: "ok"}, nil
}

// recordingAudit captures security events in memory.
type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) byType(t string) []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AuditEvent
	for _, ev := range a.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
