package canon_test

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"index-pump/internal/canon"
)

func TestCanonicalizeSortsKeysAtEveryLevel(t *testing.T) {
	a := map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{"z": true, "y": nil},
	}
	b := map[string]interface{}{
		"a": map[string]interface{}{"y": nil, "z": true},
		"b": 1,
	}

	ca, cb := canon.Canonicalize(a), canon.Canonicalize(b)
	if ca != cb {
		t.Errorf("key order changed output:\n%s\n%s", ca, cb)
	}
	want := `{"a":{"y":null,"z":true},"b":1}`
	if ca != want {
		t.Errorf("canonical form = %s, want %s", ca, want)
	}
}

func TestCanonicalizePreservesArrayOrder(t *testing.T) {
	x := []interface{}{1, 2, 3}
	y := []interface{}{3, 2, 1}
	if canon.Canonicalize(x) == canon.Canonicalize(y) {
		t.Error("array order should be significant")
	}
	if got, want := canon.Canonicalize(x), "[1,2,3]"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeDates(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	local := time.Date(2024, 3, 1, 9, 30, 0, 0, loc)
	utc := local.UTC()

	if canon.Canonicalize(local) != canon.Canonicalize(utc) {
		t.Error("equal instants in different zones should canonicalize identically")
	}
	if got, want := canon.Canonicalize(utc), `"2024-03-01T00:30:00.000Z"`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	var nilTime *time.Time
	if got := canon.Canonicalize(nilTime); got != "null" {
		t.Errorf("nil *time.Time = %s, want null", got)
	}
}

func TestCanonicalizeBigIntegers(t *testing.T) {
	n := new(big.Int)
	n.SetString("98765432109876543210987654321098765432109876543210", 10)
	got := canon.Canonicalize(n)
	if got != "98765432109876543210987654321098765432109876543210" {
		t.Errorf("big.Int not preserved: %s", got)
	}

	jn := json.Number("12345678901234567890")
	if canon.Canonicalize(jn) != "12345678901234567890" {
		t.Errorf("json.Number not preserved: %s", canon.Canonicalize(jn))
	}
}

func TestCanonicalizeNulls(t *testing.T) {
	if got := canon.Canonicalize(nil); got != "null" {
		t.Errorf("nil = %s, want null", got)
	}
	m := map[string]interface{}{"x": nil}
	if got := canon.Canonicalize(m); got != `{"x":null}` {
		t.Errorf("got %s", got)
	}
}

func TestCanonicalizeStringEscaping(t *testing.T) {
	got := canon.Canonicalize(`he said "hi"` + "\n")
	if !strings.Contains(got, `\"hi\"`) {
		t.Errorf("quotes not escaped: %s", got)
	}
	if !strings.HasPrefix(got, `"`) || !strings.HasSuffix(got, `"`) {
		t.Errorf("not a string literal: %s", got)
	}
}

func TestCanonicalizeTypedMapsAndSlices(t *testing.T) {
	// Typed maps go through the reflection path and must still sort keys.
	m1 := map[string]int{"b": 2, "a": 1}
	m2 := map[string]int{"a": 1, "b": 2}
	if canon.Canonicalize(m1) != canon.Canonicalize(m2) {
		t.Error("typed map key order changed output")
	}
	if got, want := canon.Canonicalize([]int{1, 2}), "[1,2]"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFingerprintStable(t *testing.T) {
	v := map[string]interface{}{
		"id":   42,
		"name": "svc",
		"tags": []interface{}{"a", "b"},
	}
	f1 := canon.Fingerprint(v)
	f2 := canon.Fingerprint(v)
	if f1 != f2 {
		t.Error("fingerprint not stable across calls")
	}
	if len(f1) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(f1))
	}

	v["name"] = "svc2"
	if canon.Fingerprint(v) == f1 {
		t.Error("fingerprint did not change with content")
	}
}
