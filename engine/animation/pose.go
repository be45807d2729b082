// Package animation defines how the skinning core asks an external scene for
// bone and node transforms.
package animation

import "github.com/spaghettifunk/anima-skinning/engine/math"

// Handle is a non-owning index into the flat node arena of a scene.
type Handle int32

// InvalidHandle marks a missing node reference.
const InvalidHandle Handle = -1

// Valid reports whether h can refer to a node at all.
func (h Handle) Valid() bool {
	return h >= 0
}

// Stack selects one animation stack of a scene. It is passed explicitly into
// every query so that nothing about the current animation lives in shared state.
type Stack int

// NoStack evaluates the scene without any animation applied (the rest pose).
const NoStack Stack = -1

/**
 * @brief PoseEvaluator resolves node transforms for the skinning core. How the
 * transforms are produced (keyframe curves, constraints, a physics rig) is up
 * to the implementation. Every method must resolve synchronously and report an
 * unknown handle with an error wrapping core.ErrLookupFailure.
 */
type PoseEvaluator interface {
	// GlobalTransform returns the world transform of the node at the given time.
	GlobalTransform(h Handle, stack Stack, time float64) (math.Mat4, error)
	// GeometricOffset returns the static transform applied to the geometry of
	// the node only, never inherited by its children.
	GeometricOffset(h Handle) (math.Mat4, error)
}
