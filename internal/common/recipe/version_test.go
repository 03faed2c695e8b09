package recipe

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyVersionComparisonConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a version compares equal to itself", prop.ForAll(
		func(v string) bool {
			cmp, err := CompareVersions(v, v)
			return err == nil && cmp == 0
		},
		genVersion(),
	))

	properties.Property("comparison is antisymmetric", prop.ForAll(
		func(a, b string) bool {
			ab, err1 := CompareVersions(a, b)
			ba, err2 := CompareVersions(b, a)
			return err1 == nil && err2 == nil && ab == -ba
		},
		genVersion(),
		genVersion(),
	))

	properties.Property("IsNewer agrees with CompareVersions", prop.ForAll(
		func(a, b string) bool {
			cmp, _ := CompareVersions(a, b)
			newer, err := IsNewer(a, b)
			return err == nil && newer == (cmp > 0)
		},
		genVersion(),
		genVersion(),
	))

	properties.TestingRun(t)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		v1, v2   string
		expected int
	}{
		{"1.3.0", "1.2.0", 1},
		{"1.2.0", "1.3.0", -1},
		{"1.2.0", "1.2.0", 0},
		{"1.2.0", "1.2.0.0", 0},
		{"1.2", "1.2.0", 0},
		{"v1.2.0", "1.2.0", 0},
		{"1.10", "1.9", 1},
		{"2.0rc1", "2.0", -1},
		{"2.0.post1", "2.0", 1},
		{"2.0a1", "2.0b1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.v1+"_vs_"+tt.v2, func(t *testing.T) {
			got, err := CompareVersions(tt.v1, tt.v2)
			if err != nil {
				t.Fatalf("CompareVersions error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.expected)
			}
		})
	}
}

func TestCompareVersionsInvalid(t *testing.T) {
	_, err := CompareVersions("not a version", "1.0")
	if !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}
