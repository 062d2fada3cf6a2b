package command

import (
	"encoding/json"
	"testing"
)

func TestMarshalCanonical_SortsObjectKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zeta":  json.Number("1"),
		"alpha": "a",
		"mid":   true,
	})
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}

	want := `{"alpha":"a","mid":true,"zeta":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical("a < b && c > d")
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}
	want := `"a < b && c > d"`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeRaw_PreservesNumberLiterals(t *testing.T) {
	// 10.001 must not drift through a float64 round-trip.
	got, err := CanonicalizeRaw(json.RawMessage(`{"price": 10.001, "qty": 3}`))
	if err != nil {
		t.Fatalf("CanonicalizeRaw() failed: %v", err)
	}
	want := `{"price":10.001,"qty":3}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeRaw_Deterministic(t *testing.T) {
	// Same logical object, different key order and whitespace.
	a, err := CanonicalizeRaw(json.RawMessage(`{"b": [1, 2], "a": null}`))
	if err != nil {
		t.Fatalf("CanonicalizeRaw(a) failed: %v", err)
	}
	b, err := CanonicalizeRaw(json.RawMessage(`{ "a": null, "b": [1,2] }`))
	if err != nil {
		t.Fatalf("CanonicalizeRaw(b) failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
}

func TestCanonicalizeRaw_Empty(t *testing.T) {
	got, err := CanonicalizeRaw(nil)
	if err != nil {
		t.Fatalf("CanonicalizeRaw(nil) failed: %v", err)
	}
	if string(got) != "null" {
		t.Errorf("got %s, want null", got)
	}
}

func TestMarshalCanonical_NestedStructures(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"items": []any{
			map[string]any{"name": "flour", "qty": json.Number("2.5")},
		},
	})
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}
	want := `{"items":[{"name":"flour","qty":2.5}]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestChecksum_StableAndDistinct(t *testing.T) {
	a := Checksum([]byte(`{"a":1}`))
	b := Checksum([]byte(`{"a":1}`))
	c := Checksum([]byte(`{"a":2}`))

	if a != b {
		t.Error("identical input must produce identical checksums")
	}
	if a == c {
		t.Error("different input must produce different checksums")
	}
	if len(a) != 64 {
		t.Errorf("checksum should be 64 hex chars, got %d", len(a))
	}
}
