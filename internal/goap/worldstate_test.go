package goap

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWorldState(t *testing.T) {
	t.Run("Get defaults to false", func(t *testing.T) {
		ws := NewWorldState(nil)
		if ws.Get("missing") != false {
			t.Errorf("Expected false for missing key, got %v", ws.Get("missing"))
		}
		if ws.Has("missing") {
			t.Error("Empty state should not have any key")
		}
	})

	t.Run("Set returns a new state", func(t *testing.T) {
		ws := NewWorldState(map[string]interface{}{"a": 1})
		next := ws.Set("b", "two")

		if ws.Has("b") {
			t.Error("Original should not have b after Set")
		}
		if next.Get("b") != "two" {
			t.Errorf("Expected 'two', got %v", next.Get("b"))
		}
		if next.Get("a") != 1 {
			t.Errorf("Expected 1, got %v", next.Get("a"))
		}
	})

	t.Run("Set then Get round trips", func(t *testing.T) {
		ws := NewWorldState(nil)
		for _, v := range []interface{}{true, false, 42, 3.5, "x"} {
			if got := ws.Set("k", v).Get("k"); got != v {
				t.Errorf("Set(k, %v).Get(k) = %v", v, got)
			}
		}
	})

	t.Run("NewWorldState copies input", func(t *testing.T) {
		facts := map[string]interface{}{"a": true}
		ws := NewWorldState(facts)
		facts["a"] = false
		if ws.Get("a") != true {
			t.Error("WorldState should not alias the input map")
		}
	})

	t.Run("Satisfies", func(t *testing.T) {
		ws := NewWorldState(map[string]interface{}{"a": 1, "b": 2, "c": 3})

		if !ws.Satisfies(Conditions{"a": 1, "b": 2}) {
			t.Error("WorldState should satisfy matching conditions")
		}
		if ws.Satisfies(Conditions{"a": 1, "d": 4}) {
			t.Error("WorldState should not satisfy conditions with missing key")
		}
		if !ws.Satisfies(Conditions{"d": false}) {
			t.Error("Missing key should satisfy a false condition")
		}
		if ws.Satisfies(Conditions{"a": "1"}) {
			t.Error("Values of different types should not match")
		}
	})

	t.Run("ApplyEffects", func(t *testing.T) {
		ws := NewWorldState(map[string]interface{}{"a": true})
		next := ws.ApplyEffects(Conditions{"a": false, "b": true})

		if ws.Get("a") != true || ws.Has("b") {
			t.Error("ApplyEffects must not modify the receiver")
		}
		if next.Get("a") != false || next.Get("b") != true {
			t.Errorf("Unexpected state after effects: %s", next)
		}
	})

	t.Run("Empty effects keep identity", func(t *testing.T) {
		ws := NewWorldState(map[string]interface{}{"a": true, "n": 3})
		if ws.ApplyEffects(Conditions{}).CanonicalKey() != ws.CanonicalKey() {
			t.Error("Applying empty effects should not change the canonical key")
		}
	})

	t.Run("DistanceTo", func(t *testing.T) {
		current := NewWorldState(map[string]interface{}{"a": 1, "b": 2})
		goal := NewWorldState(map[string]interface{}{"a": 1, "b": 3, "c": 4})

		if d := current.DistanceTo(goal); d != 2 {
			t.Errorf("Expected distance 2, got %d", d)
		}

		falseGoal := NewWorldState(map[string]interface{}{"off": false})
		if d := current.DistanceTo(falseGoal); d != 0 {
			t.Errorf("Missing key should count as false, got distance %d", d)
		}
	})

	t.Run("CanonicalKey ignores insertion order", func(t *testing.T) {
		a := NewWorldState(nil).Set("x", true).Set("y", 2).Set("z", "s")
		b := NewWorldState(nil).Set("z", "s").Set("x", true).Set("y", 2)

		if a.CanonicalKey() != b.CanonicalKey() {
			t.Errorf("Keys differ: %q vs %q", a.CanonicalKey(), b.CanonicalKey())
		}
		if !a.Equal(b) {
			t.Error("Equal should hold for value-identical states")
		}
	})

	t.Run("CanonicalKey distinguishes types", func(t *testing.T) {
		a := NewWorldState(map[string]interface{}{"x": true})
		b := NewWorldState(map[string]interface{}{"x": "true"})
		if a.CanonicalKey() == b.CanonicalKey() {
			t.Error("bool true and string \"true\" must serialize differently")
		}
	})

	t.Run("Diff", func(t *testing.T) {
		a := NewWorldState(map[string]interface{}{"same": 1, "changed": 1, "only_a": true})
		b := NewWorldState(map[string]interface{}{"same": 1, "changed": 2, "only_b": true})

		want := []string{"changed", "only_a", "only_b"}
		if diff := cmp.Diff(want, a.Diff(b)); diff != "" {
			t.Errorf("Diff mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		ws := NewWorldState(map[string]interface{}{"ready": true, "name": "x"})
		data, err := json.Marshal(ws)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		var decoded WorldState
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if !decoded.Equal(ws) {
			t.Errorf("Expected %s, got %s", ws, decoded)
		}
	})

	t.Run("String", func(t *testing.T) {
		if s := NewWorldState(nil).String(); s != "{}" {
			t.Errorf("Expected {}, got %s", s)
		}
		ws := NewWorldState(map[string]interface{}{"b": 2, "a": true})
		if s := ws.String(); s != "{a: true, b: 2}" {
			t.Errorf("Unexpected string %s", s)
		}
	})
}
