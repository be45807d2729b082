package math

import (
	"testing"
)

const testTolerance float32 = 1e-5

func TestMat4MulAppliesLeftFirst(t *testing.T) {
	// scale then translate: (1,0,0) -> (2,0,0) -> (2,3,0)
	m := NewMat4Scale(NewVec3(2, 2, 2)).Mul(NewMat4Translation(NewVec3(0, 3, 0)))
	got := NewVec3(1, 0, 0).Transform(m)
	want := NewVec3(2, 3, 0)
	if !got.Compare(want, testTolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// translate then scale: (1,0,0) -> (1,3,0) -> (2,6,0)
	m = NewMat4Translation(NewVec3(0, 3, 0)).Mul(NewMat4Scale(NewVec3(2, 2, 2)))
	got = NewVec3(1, 0, 0).Transform(m)
	want = NewVec3(2, 6, 0)
	if !got.Compare(want, testTolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMat4EulerZRotatesCounterClockwise(t *testing.T) {
	m := NewMat4EulerZ(DegToRad(90))
	got := NewVec3(1, 0, 0).Transform(m)
	want := NewVec3(0, 1, 0)
	if !got.Compare(want, testTolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMat4Inverse(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
	}{
		{"identity", NewMat4Identity()},
		{"translation", NewMat4Translation(NewVec3(1, -2, 3))},
		{"trs", NewMat4TRS(NewVec3(4, 5, -6), NewVec3(30, -45, 60), NewVec3(2, 0.5, 3))},
		{"rotation", NewMat4EulerXYZ(0.3, 1.2, -0.7)},
	}
	identity := NewMat4Identity()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := tt.m.Inverse()
			if p := tt.m.Mul(inv); !p.Compare(identity, testTolerance) {
				t.Errorf("m * inverse(m) is not identity: %v", p.Data)
			}
			if p := inv.Mul(tt.m); !p.Compare(identity, testTolerance) {
				t.Errorf("inverse(m) * m is not identity: %v", p.Data)
			}
		})
	}
}

func TestMat4TRSOrder(t *testing.T) {
	m := NewMat4TRS(NewVec3(10, 0, 0), NewVec3(0, 0, 90), NewVec3(2, 1, 1))
	// scale (1,0,0) -> (2,0,0), rotate 90 about Z -> (0,2,0), translate -> (10,2,0)
	got := NewVec3(1, 0, 0).Transform(m)
	want := NewVec3(10, 2, 0)
	if !got.Compare(want, testTolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTransformVectorIgnoresTranslation(t *testing.T) {
	m := NewMat4Scale(NewVec3(3, 3, 3)).Mul(NewMat4Translation(NewVec3(5, 5, 5)))
	got := NewVec3(0, 1, 0).TransformVector(m)
	want := NewVec3(0, 3, 0)
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestZeroMatrixCollapsesToOrigin(t *testing.T) {
	var zero Mat4
	got := NewVec3(7, -3, 12).Transform(zero)
	if got != NewVec3Zero() {
		t.Errorf("expected origin, got %v", got)
	}
}

func TestMat4AddScaled(t *testing.T) {
	a := NewMat4Identity()
	b := NewMat4Translation(NewVec3(0, 2, 0))
	var acc Mat4
	acc.AddScaled(&a, 0.5)
	acc.AddScaled(&b, 0.5)
	want := a.MulScalar(0.5).Add(b.MulScalar(0.5))
	if acc != want {
		t.Errorf("AddScaled disagrees with Add/MulScalar: %v vs %v", acc.Data, want.Data)
	}
}

func TestGeometryCalculateExtents(t *testing.T) {
	ext, center := GeometryCalculateExtents([]Vec3{{-1, 0, 2}, {3, -4, 0}, {0, 1, 1}})
	if ext.Min != NewVec3(-1, -4, 0) || ext.Max != NewVec3(3, 1, 2) {
		t.Errorf("unexpected extents %+v", ext)
	}
	if center != NewVec3(1, -1.5, 1) {
		t.Errorf("unexpected center %v", center)
	}
	if ext, _ := GeometryCalculateExtents(nil); ext != (Extents3D{}) {
		t.Errorf("expected zero extents for no vertices, got %+v", ext)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Error("int clamp failed")
	}
	if Clamp(0.25, 0.5, 1.0) != 0.5 {
		t.Error("float clamp failed")
	}
}
