package vector

import (
	"math"
	"testing"
)

func TestPackUnpack_RoundTrip(t *testing.T) {
	in := []float32{0.8, 0.1, 0.1}
	out := Unpack(Pack(in))

	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestPack_Empty(t *testing.T) {
	if got := Pack(nil); len(got) != 0 {
		t.Errorf("Pack(nil) = %d bytes, want 0", len(got))
	}
	if got := Unpack(nil); len(got) != 0 {
		t.Errorf("Unpack(nil) = %d values, want 0", len(got))
	}
}

func TestL2Distance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{0.3, 0.3, 0.3}, []float32{0.3, 0.3, 0.3}, 0},
		{"unit apart", []float32{0, 0, 0}, []float32{1, 0, 0}, 1},
		{"pythagorean", []float32{0, 0, 0}, []float32{3, 4, 0}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := L2Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("L2Distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestL2Distance_MismatchedLengths(t *testing.T) {
	got := L2Distance([]float32{1, 2}, []float32{1, 2, 3})
	if !math.IsInf(got, 1) {
		t.Errorf("L2Distance mismatched = %v, want +Inf", got)
	}
}
