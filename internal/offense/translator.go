// Package offense maps the local electoral offense identifiers to the small
// integers the backend stores.
package offense

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ACBRI/veritas.ia/internal/model"
)

const (
	MultipleVote      model.OffenseType = "multiple-vote"
	Obstruction       model.OffenseType = "obstruction"
	BallotDestruction model.OffenseType = "ballot-destruction"
	VotePhoto         model.OffenseType = "vote-photo"
	Impersonation     model.OffenseType = "impersonation"
	Intimidation      model.OffenseType = "intimidation"
	SecrecyViolation  model.OffenseType = "secrecy-violation"
	IllegalPropaganda model.OffenseType = "illegal-propaganda"
	Weapons           model.OffenseType = "weapons"
	PublicDisorder    model.OffenseType = "public-disorder"
)

// UnknownWire is the wire-side failure sentinel. Valid wire ids start at 1.
const UnknownWire = 0

var table = []model.OffenseType{
	MultipleVote,
	Obstruction,
	BallotDestruction,
	VotePhoto,
	Impersonation,
	Intimidation,
	SecrecyViolation,
	IllegalPropaganda,
	Weapons,
	PublicDisorder,
}

type Translator struct {
	toWire   map[model.OffenseType]int
	fromWire map[int]model.OffenseType
}

// Default is built once at package init and is safe for concurrent reads.
var Default = NewTranslator()

func NewTranslator() *Translator {
	t := &Translator{
		toWire:   make(map[model.OffenseType]int, len(table)),
		fromWire: make(map[int]model.OffenseType, len(table)),
	}
	for i, id := range table {
		t.toWire[id] = i + 1
		t.fromWire[i+1] = id
	}
	return t
}

func (t *Translator) ToWire(id model.OffenseType) (int, bool) {
	wire, ok := t.toWire[id]
	if !ok {
		return UnknownWire, false
	}
	return wire, true
}

func (t *Translator) FromWire(wire int) (model.OffenseType, bool) {
	id, ok := t.fromWire[wire]
	if !ok {
		return model.OffenseUnknown, false
	}
	return id, true
}

// FromWireString accepts a wire id written as a numeric string.
func (t *Translator) FromWireString(s string) (model.OffenseType, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return model.OffenseUnknown, false
	}
	return t.FromWire(n)
}

// Resolve returns the wire id for v, which may be a local id, a wire id, or
// a wire id in string form. Values already in wire form must round-trip.
func (t *Translator) Resolve(v interface{}) (int, bool) {
	switch x := v.(type) {
	case model.OffenseType:
		if wire, ok := t.ToWire(x); ok {
			return wire, true
		}
		return t.resolveString(string(x))
	case string:
		if wire, ok := t.ToWire(model.OffenseType(x)); ok {
			return wire, true
		}
		return t.resolveString(x)
	case int:
		return t.validWire(x)
	case int64:
		return t.validWire(int(x))
	case float64:
		if x != math.Trunc(x) {
			return UnknownWire, false
		}
		return t.validWire(int(x))
	case json.Number:
		return t.resolveString(x.String())
	default:
		return UnknownWire, false
	}
}

func (t *Translator) resolveString(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return UnknownWire, false
	}
	return t.validWire(n)
}

func (t *Translator) validWire(n int) (int, bool) {
	if _, ok := t.fromWire[n]; !ok {
		return UnknownWire, false
	}
	return n, true
}

// Known lists the local ids in wire order.
func (t *Translator) Known() []model.OffenseType {
	out := make([]model.OffenseType, len(table))
	copy(out, table)
	return out
}
