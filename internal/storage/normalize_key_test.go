package storage

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string trimmed", "  Colombia ", "Colombia"},
		{"int64", int64(217), "217"},
		{"int", 5, "5"},
		{"float integral", float64(217), "217"},
		{"float fractional", 40.697, "40.697"},
		{"bytes", []byte(" x "), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Errorf("NormalizeKey(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeKeyFloatMatchesInt(t *testing.T) {
	// A driver handing back float64 for a bigint column must produce the
	// same cache key the loader computed from int64.
	if NormalizeKey(float64(1018)) != NormalizeKey(int64(1018)) {
		t.Fatal("float64 and int64 encodings of the same key differ")
	}
}

func TestCompositeKey(t *testing.T) {
	a := CompositeKey("Bogota", "Cundinamarca", int64(45), int64(3), 4.6, -74.08)
	b := CompositeKey("Bogota", "Cundinamarca", int64(45), int64(3), 4.6, -74.08)
	if a != b {
		t.Fatal("identical keys encode differently")
	}
	if CompositeKey("a", "b") == CompositeKey("ab", "") {
		t.Fatal("separator does not keep parts distinct")
	}
	if CompositeKey("x") != "x" {
		t.Fatal("single-part key should be the bare normalized value")
	}
}
