package model

import (
	"encoding/json"
	"testing"
)

func TestCaseFromPath(t *testing.T) {
	tests := []struct {
		path   string
		caseID string
		ok     bool
	}{
		{"10023/briefs/motion.pdf", "10023", true},
		{"/10023/briefs/motion.pdf", "10023", true},
		{"1234567/x.pdf", "1234567", true},
		{"1234/x.pdf", "", false},     // too short
		{"12345678/x.pdf", "", false}, // too long
		{"shared/handbook.pdf", "", false},
		{"10023a/x.pdf", "", false},
		{"", "", false},
		{"motion.pdf", "", false},
	}
	for _, tt := range tests {
		caseID, ok := CaseFromPath(tt.path)
		if caseID != tt.caseID || ok != tt.ok {
			t.Errorf("CaseFromPath(%q) = %q, %v; want %q, %v", tt.path, caseID, ok, tt.caseID, tt.ok)
		}
	}
}

func TestEntitlementZeroValuePermitsNothing(t *testing.T) {
	var e Entitlement
	if e.Permits("10023") {
		t.Fatal("zero value must deny")
	}
	if !e.Empty() {
		t.Fatal("zero value is empty")
	}
}

func TestEntitlementAllVariant(t *testing.T) {
	e := AllEntitlement()
	if !e.Permits("10023") || !e.Permits("99999") {
		t.Fatal("all-cases must permit everything")
	}
	if e.Empty() {
		t.Fatal("all-cases is not empty")
	}
	if e.Cases() != nil {
		t.Fatalf("all-cases has no concrete list, got %v", e.Cases())
	}
	// The sentinel collapses a mixed list into the all variant.
	if !NewEntitlement("10023", AllCases).All() {
		t.Fatal("sentinel in the list must produce the all variant")
	}
}

func TestEntitlementEqual(t *testing.T) {
	a := NewEntitlement("100", "200")
	b := NewEntitlement("200", "100")
	if !a.Equal(b) {
		t.Fatal("order must not matter")
	}
	if a.Equal(NewEntitlement("100")) {
		t.Fatal("removed case must break equality")
	}
	if a.Equal(NewEntitlement("100", "200", "300")) {
		t.Fatal("added case must break equality")
	}
	if a.Equal(AllEntitlement()) || AllEntitlement().Equal(a) {
		t.Fatal("concrete set never equals the all variant")
	}
	if !AllEntitlement().Equal(AllEntitlement()) {
		t.Fatal("all equals all")
	}
}

func TestEntitlementCloneIsIndependent(t *testing.T) {
	orig := NewEntitlement("100")
	clone := orig.Clone()
	if !clone.Equal(orig) {
		t.Fatal("clone must start equal")
	}
	// Mutating the original's backing map must not leak into the clone.
	orig.cases["200"] = struct{}{}
	if clone.Permits("200") {
		t.Fatal("clone shares state with the original")
	}
}

func TestEntitlementJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewEntitlement("200", "100"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["100","200"]` {
		t.Fatalf("unexpected wire form %s", data)
	}

	var e Entitlement
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !e.Equal(NewEntitlement("100", "200")) {
		t.Fatalf("round-trip mismatch: %s", e)
	}

	data, err = json.Marshal(AllEntitlement())
	if err != nil {
		t.Fatalf("marshal all: %v", err)
	}
	if string(data) != `["*"]` {
		t.Fatalf("unexpected all-cases wire form %s", data)
	}
	var all Entitlement
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatalf("unmarshal all: %v", err)
	}
	if !all.All() {
		t.Fatal("all-cases did not survive the round trip")
	}
}

func TestEntitlementString(t *testing.T) {
	if got := NewEntitlement("200", "100").String(); got != "[100, 200]" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := AllEntitlement().String(); got != "*" {
		t.Fatalf("unexpected all string %q", got)
	}
	if got := NewEntitlement().String(); got != "[]" {
		t.Fatalf("unexpected empty string %q", got)
	}
}
