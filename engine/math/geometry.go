package math

import "github.com/chewxy/math32"

// GeometryCalculateExtents returns the axis-aligned bounds and the center of
// the provided vertices. An empty slice yields zero extents.
func GeometryCalculateExtents(vertices []Vec3) (Extents3D, Vec3) {
	if len(vertices) == 0 {
		return Extents3D{}, NewVec3Zero()
	}
	inf := math32.Inf(1)
	ext := Extents3D{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
	for _, v := range vertices {
		ext.Min = ext.Min.Min(v)
		ext.Max = ext.Max.Max(v)
	}
	center := ext.Min.Add(ext.Max).MulScalar(0.5)
	return ext, center
}
