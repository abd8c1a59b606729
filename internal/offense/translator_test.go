package offense

import (
	"encoding/json"
	"testing"

	"github.com/ACBRI/veritas.ia/internal/model"
)

func TestRoundTripForEveryKnownID(t *testing.T) {
	tr := NewTranslator()
	for _, id := range tr.Known() {
		wire, ok := tr.ToWire(id)
		if !ok {
			t.Fatalf("expected %s to translate", id)
		}
		back, ok := tr.FromWire(wire)
		if !ok || back != id {
			t.Fatalf("round trip of %s gave %q (ok=%v)", id, back, ok)
		}
	}
}

func TestFromWireOutsideRange(t *testing.T) {
	tr := NewTranslator()
	for _, wire := range []int{0, -1, 11, 1000} {
		if id, ok := tr.FromWire(wire); ok || id != model.OffenseUnknown {
			t.Fatalf("expected %d to be unknown, got %q", wire, id)
		}
	}
}

func TestFromWireString(t *testing.T) {
	tr := NewTranslator()
	if id, ok := tr.FromWireString("3"); !ok || id != BallotDestruction {
		t.Fatalf("expected ballot-destruction, got %q", id)
	}
	if _, ok := tr.FromWireString("three"); ok {
		t.Fatalf("expected non-numeric string to fail")
	}
}

func TestResolveAcceptsWireFormOnlyWhenItRoundTrips(t *testing.T) {
	tr := NewTranslator()

	cases := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{Weapons, 9, true},
		{"vote-photo", 4, true},
		{4, 4, true},
		{float64(10), 10, true},
		{"7", 7, true},
		{json.Number("2"), 2, true},
		{42, UnknownWire, false},
		{"42", UnknownWire, false},
		{2.5, UnknownWire, false},
		{model.OffenseType("bribery"), UnknownWire, false},
		{nil, UnknownWire, false},
	}
	for _, tc := range cases {
		got, ok := tr.Resolve(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Resolve(%v) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
