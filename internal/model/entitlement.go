package model

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// AllCases is the sentinel meaning an identity may see every case.
const AllCases = "*"

// caseIDPattern is the shape of a case number: the leading path segment
// of every document in the store. 5–7 digits, nothing else.
var caseIDPattern = regexp.MustCompile(`^[0-9]{5,7}$`)

// IsCaseID reports whether s has the case-number shape.
func IsCaseID(s string) bool {
	return caseIDPattern.MatchString(s)
}

// CaseFromPath extracts the leading case segment of a storage path.
// Paths that do not start with a case number return ok=false; callers
// must treat those as unauthorized (fail closed).
func CaseFromPath(path string) (string, bool) {
	p := strings.TrimLeft(path, "/")
	seg, _, _ := strings.Cut(p, "/")
	if !IsCaseID(seg) {
		return "", false
	}
	return seg, true
}

// Entitlement is the set of cases an identity may see. It is either the
// administrative "all cases" variant or a concrete set of case numbers.
// The zero value permits nothing.
type Entitlement struct {
	all   bool
	cases map[string]struct{}
}

func NewEntitlement(caseIDs ...string) Entitlement {
	e := Entitlement{cases: make(map[string]struct{}, len(caseIDs))}
	for _, c := range caseIDs {
		if c == AllCases {
			return AllEntitlement()
		}
		e.cases[c] = struct{}{}
	}
	return e
}

func AllEntitlement() Entitlement {
	return Entitlement{all: true}
}

// Permits is the single authorization predicate used by every layer.
func (e Entitlement) Permits(caseID string) bool {
	if e.all {
		return true
	}
	_, ok := e.cases[caseID]
	return ok
}

func (e Entitlement) All() bool { return e.all }

func (e Entitlement) Empty() bool { return !e.all && len(e.cases) == 0 }

func (e Entitlement) Len() int {
	if e.all {
		return 0
	}
	return len(e.cases)
}

// Cases returns the concrete case numbers in sorted order. Empty for the
// all-cases variant.
func (e Entitlement) Cases() []string {
	if e.all {
		return nil
	}
	out := make([]string, 0, len(e.cases))
	for c := range e.cases {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Equal reports set equality. Cases added or removed both count.
func (e Entitlement) Equal(other Entitlement) bool {
	if e.all != other.all {
		return false
	}
	if e.all {
		return true
	}
	if len(e.cases) != len(other.cases) {
		return false
	}
	for c := range e.cases {
		if _, ok := other.cases[c]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Tokens and thread records hold
// clones so a later directory rebuild can never mutate a frozen snapshot.
func (e Entitlement) Clone() Entitlement {
	if e.all {
		return AllEntitlement()
	}
	return NewEntitlement(e.Cases()...)
}

// MarshalJSON encodes as ["*"] for the all-cases variant, otherwise the
// sorted case list. This is the wire form carried inside session tokens.
func (e Entitlement) MarshalJSON() ([]byte, error) {
	if e.all {
		return json.Marshal([]string{AllCases})
	}
	return json.Marshal(e.Cases())
}

func (e *Entitlement) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = NewEntitlement(raw...)
	return nil
}

func (e Entitlement) String() string {
	if e.all {
		return AllCases
	}
	return "[" + strings.Join(e.Cases(), ", ") + "]"
}
