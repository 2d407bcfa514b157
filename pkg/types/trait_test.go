package types

import (
	"math"
	"testing"
)

// TestClampForcesRange verifies that Clamp forces every value into [0,1]
// and replaces non-finite values with the neutral midpoint.
func TestClampForcesRange(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"below_range", -0.5, 0.0},
		{"above_range", 1.7, 1.0},
		{"in_range", 0.42, 0.42},
		{"nan", math.NaN(), NeutralTraitValue},
		{"pos_inf", math.Inf(1), NeutralTraitValue},
		{"neg_inf", math.Inf(-1), NeutralTraitValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := TraitVector{TraitEmpathy: tc.in}
			got := v.Clamp()[TraitEmpathy]
			if got != tc.want {
				t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

// TestNewTraitVectorUsesNeutralMidpoint verifies that every schema key is
// present and initialized to 0.5.
func TestNewTraitVectorUsesNeutralMidpoint(t *testing.T) {
	v := NewTraitVector(DefaultTraitKeys)

	if len(v) != len(DefaultTraitKeys) {
		t.Fatalf("expected %d keys, got %d", len(DefaultTraitKeys), len(v))
	}
	for _, k := range DefaultTraitKeys {
		if v[k] != NeutralTraitValue {
			t.Errorf("key %q = %v, want %v", k, v[k], NeutralTraitValue)
		}
	}
}

// TestDistanceIdenticalVectorsIsZero verifies that distance of a vector to
// itself is exactly zero.
func TestDistanceIdenticalVectorsIsZero(t *testing.T) {
	v := TraitVector{TraitAggression: 0.2, TraitEmpathy: 0.8}

	if d := Distance(v, v.Clone()); d != 0.0 {
		t.Errorf("Distance(v, v) = %v, want 0", d)
	}
}

// TestDistanceKnownValue verifies the Euclidean formula on a hand-computed case.
func TestDistanceKnownValue(t *testing.T) {
	a := TraitVector{TraitAggression: 0.2, TraitEmpathy: 0.8}
	b := TraitVector{TraitAggression: 0.7, TraitEmpathy: 0.3}

	want := math.Sqrt(0.5*0.5 + 0.5*0.5)
	if d := Distance(a, b); math.Abs(d-want) > 1e-12 {
		t.Errorf("Distance = %v, want %v", d, want)
	}
}

// TestDistancePanicsOnSchemaMismatch verifies the programming-contract
// violation path: mismatched key sets must panic, not return an error.
func TestDistancePanicsOnSchemaMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on schema mismatch, got none")
		}
	}()

	a := TraitVector{TraitAggression: 0.2}
	b := TraitVector{TraitEmpathy: 0.8}
	Distance(a, b)
}

// TestMaxDistance verifies the normalization bound sqrt(n).
func TestMaxDistance(t *testing.T) {
	if got := MaxDistance(4); got != 2.0 {
		t.Errorf("MaxDistance(4) = %v, want 2.0", got)
	}
	if got := MaxDistance(0); got != 0.0 {
		t.Errorf("MaxDistance(0) = %v, want 0", got)
	}
}

// TestCloneIsIndependent verifies that mutating a clone does not affect the
// original vector.
func TestCloneIsIndependent(t *testing.T) {
	orig := TraitVector{TraitHumor: 0.6}
	clone := orig.Clone()
	clone[TraitHumor] = 0.1

	if orig[TraitHumor] != 0.6 {
		t.Errorf("original mutated through clone: %v", orig[TraitHumor])
	}
}
