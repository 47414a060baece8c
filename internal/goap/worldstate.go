package goap

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Conditions is a partial mapping from proposition name to value. It is used
// for action preconditions and effects and for goal propositions.
type Conditions map[string]interface{}

// Keys returns the condition keys in sorted order.
func (c Conditions) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the conditions.
func (c Conditions) Clone() Conditions {
	clone := make(Conditions, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}

// overlaps reports whether c and other share at least one key.
func (c Conditions) overlaps(other Conditions) bool {
	small, large := c, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for k := range small {
		if _, ok := large[k]; ok {
			return true
		}
	}
	return false
}

// WorldState is an immutable set of named propositions.
// Every operation that changes a proposition returns a new WorldState; the
// receiver is never modified, so search branches can share ancestors safely.
// A proposition that is absent reads as false.
type WorldState struct {
	facts map[string]interface{}
}

// NewWorldState creates a WorldState holding a copy of facts. A nil map
// yields the empty state.
func NewWorldState(facts map[string]interface{}) WorldState {
	ws := WorldState{facts: make(map[string]interface{}, len(facts))}
	for k, v := range facts {
		ws.facts[k] = v
	}
	return ws
}

// Get returns the value of key, or false when the key is absent.
func (ws WorldState) Get(key string) interface{} {
	if v, ok := ws.facts[key]; ok {
		return v
	}
	return false
}

// Has checks if a key exists in the WorldState.
func (ws WorldState) Has(key string) bool {
	_, exists := ws.facts[key]
	return exists
}

// Len returns the number of stored propositions.
func (ws WorldState) Len() int {
	return len(ws.facts)
}

// Keys returns the stored proposition names in sorted order.
func (ws WorldState) Keys() []string {
	keys := make([]string, 0, len(ws.facts))
	for k := range ws.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set returns a new WorldState with key set to value.
func (ws WorldState) Set(key string, value interface{}) WorldState {
	next := ws.clone(1)
	next.facts[key] = value
	return next
}

// Satisfies reports whether every key in conditions matches this state.
// Absent keys are compared as false.
func (ws WorldState) Satisfies(conditions Conditions) bool {
	for key, expected := range conditions {
		if !valuesEqual(ws.Get(key), expected) {
			return false
		}
	}
	return true
}

// SatisfiesState is Satisfies with the propositions of another state as the
// conditions. It is how goal states are checked.
func (ws WorldState) SatisfiesState(goal WorldState) bool {
	return ws.Satisfies(goal.facts)
}

// ApplyEffects returns a new state with every key in effects overwritten.
func (ws WorldState) ApplyEffects(effects Conditions) WorldState {
	next := ws.clone(len(effects))
	for key, value := range effects {
		next.facts[key] = value
	}
	return next
}

// DistanceTo counts the goal propositions whose value differs in ws.
//
// This is the search heuristic. It is a plain mismatch count: it can
// overestimate when one action fixes several propositions and it ignores
// action costs, so search ordered by it is best-first rather than optimal A*.
func (ws WorldState) DistanceTo(goal WorldState) int {
	distance := 0
	for key, goalValue := range goal.facts {
		if !valuesEqual(ws.Get(key), goalValue) {
			distance++
		}
	}
	return distance
}

// Diff returns the sorted keys whose stored values differ between ws and
// other, including keys present in only one of them.
func (ws WorldState) Diff(other WorldState) []string {
	differences := []string{}

	for key, value := range ws.facts {
		otherValue, exists := other.facts[key]
		if !exists || !valuesEqual(otherValue, value) {
			differences = append(differences, key)
		}
	}

	for key := range other.facts {
		if _, exists := ws.facts[key]; !exists {
			differences = append(differences, key)
		}
	}

	sort.Strings(differences)
	return differences
}

// Equal reports whether both states hold identical propositions.
func (ws WorldState) Equal(other WorldState) bool {
	return ws.CanonicalKey() == other.CanonicalKey()
}

// CanonicalKey serializes the state into a string that is identical for
// value-identical states regardless of insertion order. Value types are part
// of the key, so true and "true" are different propositions.
func (ws WorldState) CanonicalKey() string {
	var sb strings.Builder
	for i, k := range ws.Keys() {
		if i > 0 {
			sb.WriteByte(';')
		}
		v := ws.facts[k]
		fmt.Fprintf(&sb, "%q=%T:%#v", k, v, v)
	}
	return sb.String()
}

// Facts returns a copy of the stored propositions.
func (ws WorldState) Facts() Conditions {
	return Conditions(ws.facts).Clone()
}

// String returns a string representation of the WorldState.
func (ws WorldState) String() string {
	if len(ws.facts) == 0 {
		return "{}"
	}

	keys := ws.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, ws.facts[k]))
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the state as a plain JSON object.
func (ws WorldState) MarshalJSON() ([]byte, error) {
	if ws.facts == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(ws.facts)
}

// UnmarshalJSON decodes a JSON object into the state.
func (ws *WorldState) UnmarshalJSON(data []byte) error {
	var facts map[string]interface{}
	if err := json.Unmarshal(data, &facts); err != nil {
		return err
	}
	*ws = NewWorldState(facts)
	return nil
}

func (ws WorldState) clone(extra int) WorldState {
	next := WorldState{facts: make(map[string]interface{}, len(ws.facts)+extra)}
	for k, v := range ws.facts {
		next.facts[k] = v
	}
	return next
}

// valuesEqual compares two proposition values. Comparable values use ==;
// anything else falls back to reflect.DeepEqual so lookups never panic.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// isComparableValue reports whether v may be used as a proposition value.
func isComparableValue(v interface{}) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
