package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/folio/id"
)

func TestNew(t *testing.T) {
	i := id.New(id.PrefixSettlement)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixSettlement {
		t.Errorf("expected prefix %q, got %q", id.PrefixSettlement, i.Prefix())
	}
}

func TestParseSettlementID(t *testing.T) {
	original := id.NewSettlementID()
	parsed, err := id.ParseSettlementID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}

	if _, err := id.ParseSettlementID(id.New(id.PrefixOrder).String()); err == nil {
		t.Error("expected error for ord_ prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestText(t *testing.T) {
	original := id.NewSettlementID()
	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("mismatch: %q != %q", decoded.String(), original.String())
	}

	text, err = id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	if len(text) != 0 {
		t.Errorf("expected empty text for nil ID, got %q", text)
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(empty) failed: %v", err)
	}
	if !empty.IsNil() {
		t.Error("expected nil after decoding empty text")
	}
}

func TestNewOrderKey(t *testing.T) {
	a := id.NewOrderKey("alice", "s1")
	b := id.NewOrderKey("alice", "s1")

	if !strings.HasPrefix(a, "alice_s1_ord_") {
		t.Errorf("unexpected order key %q", a)
	}
	if a == b {
		t.Errorf("two consecutive NewOrderKey calls returned the same key: %q", a)
	}
}
