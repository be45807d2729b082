package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
)

// DeformerSystem applies linear blend skinning to registered meshes.
type DeformerSystem struct{}

func NewDeformerSystem() *DeformerSystem {
	return &DeformerSystem{}
}

func (ds *DeformerSystem) Shutdown() error {
	return nil
}

/**
 * @brief Deforms a skinned entry into its buffer for the given time.
 *
 * Each bone contributes
 *   bindRef = geometryOffset * bindTransform * inverse(bindLinkTransform)
 *   curRel  = boneGlobal(time) * inverse(parentGlobal)
 *   M       = bindRef * curRel
 * and each vertex is moved by the weighted sum of those matrices. A vertex
 * whose weights are all zero ends up at the origin.
 *
 * @param entry A skinned entry. Only one caller may deform it at a time.
 * @param parentGlobal The current global transform of the node drawing the mesh.
 * @param pose Resolves the bones.
 * @return The entry's buffer, or an error if any bone cannot be resolved, in
 * which case the buffer keeps its previous stamps.
 */
func (ds *DeformerSystem) Deform(entry *MeshEntry, parentGlobal math.Mat4, pose animation.PoseEvaluator, stack animation.Stack, time float64, frame uint64) (*resources.DeformedMesh, error) {
	skin := entry.Skin
	if !skin.HasSkin || entry.Deformed == nil {
		return nil, fmt.Errorf("mesh '%s': %w: mesh has no skin to deform", entry.Name(), core.ErrInvalidMesh)
	}

	if entry.bindRefs == nil {
		refs, err := bindReferences(entry, pose)
		if err != nil {
			return nil, err
		}
		entry.bindRefs = refs
	}
	if len(entry.skinning) != skin.BoneCount() {
		entry.skinning = make([]math.Mat4, skin.BoneCount())
	}

	parentInverse := parentGlobal.Inverse()
	for i := range skin.Bones {
		current, err := pose.GlobalTransform(skin.Bones[i].Bone, stack, time)
		if err != nil {
			return nil, fmt.Errorf("mesh '%s' bone %d: %w", entry.Name(), i, err)
		}
		entry.skinning[i] = entry.bindRefs[i].Mul(current.Mul(parentInverse))
	}

	ref := entry.Reference
	dm := entry.Deformed
	hasNormals := ref.HasNormals()
	for v := range ref.Vertices {
		row := skin.Row(v)
		m := entry.skinning[0].MulScalar(row[0])
		for j := 1; j < len(row); j++ {
			if row[j] == 0 {
				continue
			}
			m.AddScaled(&entry.skinning[j], row[j])
		}
		dm.Vertices[v] = ref.Vertices[v].Transform(m)
		if hasNormals {
			dm.Normals[v] = ref.Normals[v].TransformVector(m)
		}
	}
	dm.Frame = frame
	dm.Time = time
	return dm, nil
}

func bindReferences(entry *MeshEntry, pose animation.PoseEvaluator) ([]math.Mat4, error) {
	geometry, err := pose.GeometricOffset(entry.Node)
	if err != nil {
		return nil, fmt.Errorf("mesh '%s': %w", entry.Name(), err)
	}
	refs := make([]math.Mat4, len(entry.Skin.Bones))
	for i, b := range entry.Skin.Bones {
		refs[i] = geometry.Mul(b.BindTransform).Mul(b.BindLinkTransform.Inverse())
	}
	return refs, nil
}
