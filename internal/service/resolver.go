package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/casescope/hub/internal/engine"
	"github.com/casescope/hub/internal/model"
	"github.com/casescope/hub/internal/store"
)

const (
	// minIndexScore is the acceptance bar for the best retrieval-index
	// candidate: at least half the query tokens must appear in its title.
	minIndexScore = 0.5
	// keywordMatchRatio is the bar for the last-resort fuzzy store match.
	keywordMatchRatio = 0.8
	// maxKeywords caps the reduced query.
	maxKeywords = 5
	// indexTopK is how many candidates to pull from the index.
	indexTopK = 10
)

var datePattern = regexp.MustCompile(`\b(\d{4}[-_./]\d{1,2}[-_./]\d{1,2}|\d{1,2}[-_./]\d{1,2}[-_./]\d{2,4}|\d{8})\b`)

// Resolution is a successful document lookup: the authoritative path,
// its properties, and a short-lived read grant.
type Resolution struct {
	Path  string                  `json:"path"`
	Info  *store.ObjectInfo       `json:"metadata"`
	Grant model.SignedAccessGrant `json:"grant"`
}

// Resolver turns an ambiguous document reference into a verified,
// case-checked, time-limited access grant.
type Resolver struct {
	store   store.ObjectStore
	index   engine.SearchIndex
	audit   SecurityLog
	signTTL time.Duration
}

func NewResolver(st store.ObjectStore, index engine.SearchIndex, audit SecurityLog, signTTLHours int) *Resolver {
	return &Resolver{
		store:   st,
		index:   index,
		audit:   audit,
		signTTL: time.Duration(signTTLHours) * time.Hour,
	}
}

// Resolve finds displayName through the cascade, re-validates its case
// prefix against ent, and issues a signed read-only URL. The hint and
// the index are not authorization-aware, so the case check runs on
// whatever path is found, however it was found.
func (r *Resolver) Resolve(ctx context.Context, displayName, hint string, pr *model.Principal) (*Resolution, error) {
	found, err := r.FindPath(ctx, displayName, hint, pr.Entitlement)
	if err != nil {
		return nil, err
	}

	if err := checkCase(found, pr.Entitlement); err != nil {
		var fe *model.ForbiddenCaseError
		if errors.As(err, &fe) {
			r.audit.Record(ctx, AuditEvent{
				Type:      AuditForbiddenDoc,
				UserID:    pr.UserID,
				SessionID: pr.SessionID,
				CaseID:    fe.CaseID,
				Detail:    fmt.Sprintf("resolution of %q hit unauthorized path %s", displayName, found),
			})
		}
		return nil, err
	}

	info, err := r.store.Properties(ctx, found)
	if err != nil {
		return nil, err
	}
	url, err := r.store.SignURL(ctx, found, r.signTTL)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Path: found,
		Info: info,
		Grant: model.SignedAccessGrant{
			Path:      found,
			SignedURL: url,
			ExpiresAt: time.Now().UTC().Add(r.signTTL).Format(time.RFC3339),
		},
	}, nil
}

// FindPath runs the cascade without issuing a grant. Short-circuits on
// the first strategy that produces a path; the entitlement only scopes
// the store enumeration fallback, never the verdict (callers check the
// case prefix themselves).
func (r *Resolver) FindPath(ctx context.Context, displayName, hint string, ent model.Entitlement) (string, error) {
	// 1. A known path hint just needs an existence check.
	if hint != "" {
		ok, err := r.store.Exists(ctx, hint)
		if err != nil {
			return "", err
		}
		if ok {
			return hint, nil
		}
	}

	// 2. Retrieval index by keyword-reduced display name.
	keywords := ReduceKeywords(displayName)
	if len(keywords) > 0 {
		results, err := r.index.Search(ctx, strings.Join(keywords, " "), "", indexTopK)
		if err == nil {
			if best, score := bestTitleMatch(keywords, results); score >= minIndexScore {
				return best, nil
			}
		}
		// Index trouble falls through to direct enumeration.
	}

	// 3. Direct enumeration of the entitled slice of the store.
	found, err := r.enumerate(ctx, displayName, keywords, ent)
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: document %q", model.ErrNotFound, displayName)
	}
	return found, nil
}

// enumerate lists the store under the caller's authorized case prefixes
// (the whole store for the all-cases entitlement) and tries match
// strategies from strict to loose.
func (r *Resolver) enumerate(ctx context.Context, displayName string, keywords []string, ent model.Entitlement) (string, error) {
	prefixes := []string{""}
	if !ent.All() {
		prefixes = prefixes[:0]
		for _, c := range ent.Cases() {
			prefixes = append(prefixes, c+"/")
		}
	}

	var paths []string
	for _, prefix := range prefixes {
		listed, err := r.store.List(ctx, prefix)
		if err != nil {
			return "", err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return "", nil
	}

	// Exact filename.
	for _, p := range paths {
		if path.Base(p) == displayName {
			return p, nil
		}
	}
	// Case-insensitive.
	lower := strings.ToLower(displayName)
	for _, p := range paths {
		if strings.ToLower(path.Base(p)) == lower {
			return p, nil
		}
	}
	// Separator-normalized.
	norm := normalizeName(displayName)
	for _, p := range paths {
		if normalizeName(path.Base(p)) == norm {
			return p, nil
		}
	}
	// Majority keyword match.
	if len(keywords) > 0 {
		for _, p := range paths {
			base := strings.ToLower(path.Base(p))
			hits := 0
			for _, kw := range keywords {
				if strings.Contains(base, kw) {
					hits++
				}
			}
			if float64(hits)/float64(len(keywords)) >= keywordMatchRatio {
				return p, nil
			}
		}
	}
	return "", nil
}

// ReduceKeywords turns a display name into a compact search query:
// extension stripped, dates stripped, short tokens dropped, capped to
// the most distinctive tokens (longest first).
func ReduceKeywords(displayName string) []string {
	name := strings.TrimSuffix(displayName, path.Ext(displayName))
	name = datePattern.ReplaceAllString(name, " ")
	name = strings.ToLower(name)

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	seen := map[string]struct{}{}
	var tokens []string
	for _, f := range fields {
		if len(f) < 4 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return len(tokens[i]) > len(tokens[j])
	})
	if len(tokens) > maxKeywords {
		tokens = tokens[:maxKeywords]
	}
	return tokens
}

// bestTitleMatch ranks candidates by the fraction of query tokens their
// indexed title contains.
func bestTitleMatch(keywords []string, results []engine.SearchResult) (string, float64) {
	bestPath, bestScore := "", 0.0
	for _, res := range results {
		title := strings.ToLower(res.Title)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				hits++
			}
		}
		score := float64(hits) / float64(len(keywords))
		if score > bestScore {
			bestPath, bestScore = res.Path, score
		}
	}
	return bestPath, bestScore
}

func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.':
			return -1
		}
		return toLowerRune(r)
	}, name)
}

func toLowerRune(r rune) rune {
	if 'A' <= r && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// checkCase re-derives the leading case segment and rejects anything
// outside the entitlement. Paths with no case prefix fail closed.
func checkCase(p string, ent model.Entitlement) error {
	caseID, ok := model.CaseFromPath(p)
	if !ok {
		return &model.ForbiddenCaseError{Path: p}
	}
	if !ent.Permits(caseID) {
		return &model.ForbiddenCaseError{CaseID: caseID, Path: p}
	}
	return nil
}
