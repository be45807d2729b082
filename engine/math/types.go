package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Row-vector convention: points are transformed as p * M, the translation
 * lives in Data[12], Data[13] and Data[14], and a.Mul(b) applies a first.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief Represents a local transform the way asset importers describe it:
 * a translation, an Euler XYZ rotation in degrees and a scale.
 * The composed matrix scales first, then rotates about X, Y and Z in that
 * order, then translates.
 */
type Transform struct {
	/** @brief The translation. */
	Translation Vec3
	/** @brief The rotation in degrees around X, Y and Z. */
	Rotation Vec3
	/** @brief The scale. */
	Scale Vec3
}
