package systems

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
)

func frameScene(t *testing.T) *scene.Scene {
	t.Helper()
	nodes := []scene.Node{
		{Name: "root", Parent: animation.InvalidHandle, Local: math.TransformIdentity()},
		{Name: "bone", Parent: 0, Local: math.TransformFromTranslation(math.NewVec3(0, 1, 0))},
		{Name: "body", Parent: 0, Local: math.TransformIdentity(), Meshes: []string{"arm"}},
		{Name: "prop", Parent: 0, Local: math.TransformFromTranslation(math.NewVec3(4, 0, 0)), Meshes: []string{"box", "ghost"}},
		{Name: "mirror", Parent: 2, Local: math.TransformFromTranslation(math.NewVec3(-2, 0, 0)), Meshes: []string{"arm"}},
		{Name: "hidden", Parent: 0, Hidden: true, Local: math.TransformIdentity(), Meshes: []string{"box"}},
	}
	stacks := []scene.AnimationStack{{
		Name: "swing",
		Stop: 1,
		Curves: map[animation.Handle]*scene.NodeCurves{
			1: {Rotation: []scene.VectorKey{
				{Time: 0, Value: math.NewVec3Zero()},
				{Time: 1, Value: math.NewVec3(0, 0, 90)},
			}},
		},
	}}
	sc, err := scene.New(nodes, stacks)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return sc
}

func registerFrameMeshes(t *testing.T, ss *SkinSystem, mcs *MeshCacheSystem, sc *scene.Scene) {
	t.Helper()
	body, _ := sc.Lookup("body")
	bone, _ := sc.Lookup("bone")
	bodyRest, _ := sc.RestGlobalTransform(body)
	boneRest, _ := sc.RestGlobalTransform(bone)

	armRef, err := resources.ExpandControlPoints("arm", body, triangle, []int32{0, 1, 2, 1, 3, 2}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cl := normalizeCluster(bone, []int32{0, 1, 2, 3}, []float32{1, 1, 1, 1})
	cl.Transform, cl.TransformLink = bodyRest, boneRest
	register(t, ss, mcs, &resources.MeshImport{
		Mesh:            armRef,
		PolygonVertices: []int32{0, 1, 2, 1, 3, 2},
		Skins:           []resources.SkinDeformer{{Clusters: []resources.Cluster{cl}}},
	})

	prop, _ := sc.Lookup("prop")
	boxRef, err := resources.ExpandControlPoints("box", prop, triangle, []int32{0, 1, 2}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	register(t, ss, mcs, &resources.MeshImport{Mesh: boxRef, PolygonVertices: []int32{0, 1, 2}})
}

// drawFrames draws a few frames and returns the delivered vertices keyed by
// frame, node and mesh.
func drawFrames(t *testing.T, workers int) (map[string][]math.Vec3, []FrameStats, []error) {
	t.Helper()
	var js *JobSystem
	if workers > 1 {
		var err error
		js, err = NewJobSystem(workers, workers)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		defer js.Shutdown()
	}
	ss, mcs := newTestSystems(t)
	sc := frameScene(t)
	registerFrameMeshes(t, ss, mcs, sc)
	fs, err := NewFrameSystem(&FrameSystemConfig{Workers: workers}, mcs, js)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var mu sync.Mutex
	out := make(map[string][]math.Vec3)
	var stats []FrameStats
	var errs []error
	for _, time := range []float64{0, 0.5, 1} {
		st, err := fs.DrawFrame(sc, 0, time, func(item DrawItem) {
			mu.Lock()
			defer mu.Unlock()
			key := fmt.Sprintf("%d/%d/%s", fs.FrameCount(), item.Node, item.MeshName)
			out[key] = append([]math.Vec3(nil), item.Geometry.Vertices...)
		})
		stats = append(stats, st)
		errs = append(errs, err)
	}
	return out, stats, errs
}

func TestDrawFrameDispatchesVisibleMeshes(t *testing.T) {
	out, stats, errs := drawFrames(t, 1)
	for i, st := range stats {
		if st.Frame != uint64(i+1) {
			t.Errorf("frame %d: unexpected frame number %d", i, st.Frame)
		}
		if st.Nodes != 5 || st.Deformed != 2 || st.Passthrough != 1 || st.Failed != 1 {
			t.Errorf("frame %d: unexpected stats %+v", i, st)
		}
		if !errors.Is(errs[i], core.ErrLookupFailure) {
			t.Errorf("frame %d: expected the missing mesh to surface ErrLookupFailure, got %v", i, errs[i])
		}
	}
	if len(out) != 9 {
		t.Errorf("expected 9 draw items over 3 frames, got %d", len(out))
	}

	// at rest the bind pose reproduces the reference mesh
	for i, v := range out["1/2/arm"] {
		if !v.Compare(triangle[[]int32{0, 1, 2, 1, 3, 2}[i]], tolerance) {
			t.Errorf("rest vertex %d: got %v", i, v)
		}
	}
	// a quarter turn of the bone around (0,1,0) carries the fully weighted (1,0,0) onto (1,2,0)
	if got := out["3/2/arm"][1]; !got.Compare(math.NewVec3(1, 2, 0), tolerance) {
		t.Errorf("expected (1,2,0) at the end of the swing, got %v", got)
	}
	// the second instance is deformed relative to its own node, 2 units to the left
	for i, v := range out["3/4/arm"] {
		want := out["3/2/arm"][i].Add(math.NewVec3(2, 0, 0))
		if !v.Compare(want, tolerance) {
			t.Errorf("instance vertex %d: expected %v, got %v", i, want, v)
		}
	}
}

func TestDrawFrameParallelMatchesSequential(t *testing.T) {
	sequential, seqStats, _ := drawFrames(t, 1)
	parallel, parStats, _ := drawFrames(t, 4)
	if len(parallel) != len(sequential) {
		t.Fatalf("expected %d draw items, got %d", len(sequential), len(parallel))
	}
	for key, want := range sequential {
		got, ok := parallel[key]
		if !ok {
			t.Errorf("missing draw item %s", key)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s vertex %d: expected %v, got %v", key, i, want[i], got[i])
			}
		}
	}
	for i := range seqStats {
		if seqStats[i] != parStats[i] {
			t.Errorf("frame %d: expected %+v, got %+v", i, seqStats[i], parStats[i])
		}
	}
}

func TestNewFrameSystemRequiresJobsForWorkers(t *testing.T) {
	_, mcs := newTestSystems(t)
	if _, err := NewFrameSystem(&FrameSystemConfig{Workers: 4}, mcs, nil); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
