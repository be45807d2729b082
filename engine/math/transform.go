package math

// TransformIdentity returns a transform with no translation, no rotation and unit scale.
func TransformIdentity() Transform {
	return Transform{
		Translation: NewVec3Zero(),
		Rotation:    NewVec3Zero(),
		Scale:       NewVec3One(),
	}
}

func TransformFromTranslation(translation Vec3) Transform {
	t := TransformIdentity()
	t.Translation = translation
	return t
}

// Matrix composes the transform into a matrix.
func (t Transform) Matrix() Mat4 {
	return NewMat4TRS(t.Translation, t.Rotation, t.Scale)
}
