package colorsci

import (
	"math"
	"testing"
)

func TestRGBLabRoundTrip(t *testing.T) {
	tests := []RGB{
		{0, 0, 0},
		{1, 1, 1},
		{0.18, 0.18, 0.18},
		{0.4, 0.1, 0.05},
		{0.02, 0.3, 0.7},
	}
	for _, c := range tests {
		back := c.Lab().RGB()
		for i := range c {
			if math.Abs(back[i]-c[i]) > 1e-9 {
				t.Errorf("round trip of %v gave %v", c, back)
				break
			}
		}
	}
}

func TestRGBLab_KnownValues(t *testing.T) {
	// The sRGB matrix and the D65 white are rounded separately, which leaves
	// white about 0.015 off the neutral axis.
	white := RGB{1, 1, 1}.Lab()
	if math.Abs(white.L-100) > 1e-6 || math.Abs(white.A) > 0.02 || math.Abs(white.B) > 0.02 {
		t.Errorf("white Lab = %+v, want (100, 0, 0)", white)
	}

	// Middle gray sRGB 119 sits close to L* = 50.
	gray := FromSRGB8([3]uint8{119, 119, 119}).Lab()
	if math.Abs(gray.L-50) > 0.5 {
		t.Errorf("sRGB 119 gray L* = %.3f, want about 50", gray.L)
	}
}

func TestLuminanceAndSaturation(t *testing.T) {
	if got := (RGB{1, 1, 1}).Luminance(); math.Abs(got-1) > 1e-12 {
		t.Errorf("white luminance = %g, want 1", got)
	}
	if got := (RGB{0.5, 0.5, 0.5}).Saturation(); got != 0 {
		t.Errorf("gray saturation = %g, want 0", got)
	}
	if got := (RGB{1, 0, 0}).Saturation(); got != 1 {
		t.Errorf("red saturation = %g, want 1", got)
	}
	if got := (RGB{}).Saturation(); got != 0 {
		t.Errorf("black saturation = %g, want 0", got)
	}
}

func TestTransformAndScale(t *testing.T) {
	m := [3][3]float64{{2, 0, 0}, {0, 1, 0}, {0.5, 0, 1}}
	got := RGB{0.1, 0.2, 0.3}.Transform(m)
	want := RGB{0.2, 0.2, 0.35}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("Transform = %v, want %v", got, want)
		}
	}

	scaled := RGB{0.1, 0.2, 0.3}.Scale([3]float64{2, 3, 0.5})
	wantScaled := RGB{0.2, 0.6, 0.15}
	for i := range wantScaled {
		if math.Abs(scaled[i]-wantScaled[i]) > 1e-12 {
			t.Fatalf("Scale = %v, want %v", scaled, wantScaled)
		}
	}

	if c := (RGB{-0.2, 0.5, 1.4}).Clamp(); c != (RGB{0, 0.5, 1}) {
		t.Errorf("Clamp = %v, want [0 0.5 1]", c)
	}
}

func TestSRGBTransfer(t *testing.T) {
	for _, v := range []float64{0, 0.002, 0.04, 0.2, 0.5, 0.9, 1} {
		lin := DecodeSRGB(v, v, v)
		enc := EncodeSRGB(lin)
		if math.Abs(enc[0]-v) > 1e-12 {
			t.Errorf("EncodeSRGB(DecodeSRGB(%g)) = %g", v, enc[0])
		}
	}
}
