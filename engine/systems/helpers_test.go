package systems

import (
	"fmt"
	"testing"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
)

const tolerance float32 = 1e-4

// fakePose serves fixed bone globals, shifted along +Y by the animation time.
type fakePose struct {
	globals   map[animation.Handle]math.Mat4
	geometric math.Mat4
}

func newFakePose() *fakePose {
	return &fakePose{
		globals:   make(map[animation.Handle]math.Mat4),
		geometric: math.NewMat4Identity(),
	}
}

func (fp *fakePose) GlobalTransform(h animation.Handle, stack animation.Stack, time float64) (math.Mat4, error) {
	m, ok := fp.globals[h]
	if !ok {
		return math.Mat4{}, fmt.Errorf("%w: bone %d", core.ErrLookupFailure, h)
	}
	return m.Mul(math.NewMat4Translation(math.NewVec3(0, float32(time), 0))), nil
}

func (fp *fakePose) GeometricOffset(h animation.Handle) (math.Mat4, error) {
	return fp.geometric, nil
}

func normalizeCluster(bone animation.Handle, indices []int32, weights []float32) resources.Cluster {
	return resources.Cluster{
		Bone:          bone,
		LinkMode:      resources.LinkModeNormalize,
		Indices:       indices,
		Weights:       weights,
		Transform:     math.NewMat4Identity(),
		TransformLink: math.NewMat4Identity(),
	}
}

// newImport expands the control points through polygonVertices and attaches
// the clusters as a single skin deformer.
func newImport(t *testing.T, name string, controlPoints []math.Vec3, polygonVertices []int32, normals []math.Vec3, clusters ...resources.Cluster) *resources.MeshImport {
	t.Helper()
	ref, err := resources.ExpandControlPoints(name, 0, controlPoints, polygonVertices, normals, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	imp := &resources.MeshImport{
		Mesh:            ref,
		PolygonVertices: polygonVertices,
	}
	if len(clusters) > 0 {
		imp.Skins = []resources.SkinDeformer{{Clusters: clusters}}
	}
	return imp
}

func newTestSystems(t *testing.T) (*SkinSystem, *MeshCacheSystem) {
	t.Helper()
	ss, err := NewSkinSystem(&SkinSystemConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	mcs, err := NewMeshCacheSystem(&MeshCacheSystemConfig{MaxMeshCount: 64}, NewDeformerSystem())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return ss, mcs
}

func register(t *testing.T, ss *SkinSystem, mcs *MeshCacheSystem, imp *resources.MeshImport) *MeshEntry {
	t.Helper()
	skin, err := ss.Bind(imp)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	entry, err := mcs.Register(imp, skin)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return entry
}
