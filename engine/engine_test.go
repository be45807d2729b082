package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
)

// replaceFile swaps content in with a rename so the watcher never sees a half written scene.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	writeFile(t, tmp, content)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func bundledRig(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../assets/scenes/arm.scene.toml")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return string(data)
}

func newTestEngine(t *testing.T, mutate func(*ApplicationConfig)) (*Engine, *[]*RenderPacket) {
	t.Helper()
	return newTestEngineWithRig(t, bundledRig(t), mutate)
}

func newTestEngineWithRig(t *testing.T, rig string, mutate func(*ApplicationConfig)) (*Engine, *[]*RenderPacket) {
	t.Helper()
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "arm.scene.toml")
	writeFile(t, scenePath, rig)

	config := DefaultApplicationConfig()
	config.Scene = scenePath
	config.Realtime = false
	config.Frames = 10
	config.Workers = 2
	config.MetricsInterval = 0
	if mutate != nil {
		mutate(config)
	}

	packets := []*RenderPacket{}
	g := &Game{
		ApplicationConfig: config,
		FnRender: func(packet *RenderPacket, deltaTime float64) error {
			packets = append(packets, packet)
			return nil
		},
	}
	e, err := New(g)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	if err := e.Initialize(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return e, &packets
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	e, packets := newTestEngine(t, func(c *ApplicationConfig) { c.Animation = "wave" })
	if err := e.Run(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(*packets) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(*packets))
	}
	st, _ := e.Scene().Stack(e.Playback().Stack())
	if st.Name != "wave" {
		t.Errorf("expected the configured animation, got %s", st.Name)
	}

	first := (*packets)[0]
	if first.Frame != 1 || first.Time != 0 {
		t.Errorf("expected the first frame at time 0, got frame %d time %f", first.Frame, first.Time)
	}
	// arm on body, floor on ground; the hidden collider is not drawn
	if len(first.Items) != 2 || first.Items[0].MeshName != "arm" || first.Items[1].MeshName != "floor" {
		t.Fatalf("unexpected draw items %+v", first.Items)
	}
	if first.Stats.Deformed != 1 || first.Stats.Passthrough != 1 || first.Stats.Failed != 0 {
		t.Errorf("unexpected stats %+v", first.Stats)
	}
	last := (*packets)[9]
	if last.Time <= first.Time {
		t.Errorf("expected playback to advance, got %f", last.Time)
	}
	moved := false
	for i, v := range last.Items[0].Geometry.Vertices {
		if !v.Compare(first.Items[0].Geometry.Vertices[i], 1e-4) {
			moved = true
		}
	}
	if !moved {
		t.Errorf("expected the skinned arm to move during the wave")
	}
	if m := core.MetricsSnapshot(); m.Deformed != 1 || m.Passthrough != 1 {
		t.Errorf("expected the last frame counters in the metrics, got %+v", m)
	}
}

func TestEngineRejectsUnknownAnimation(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "arm.scene.toml")
	writeFile(t, scenePath, bundledRig(t))
	config := DefaultApplicationConfig()
	config.Scene = scenePath
	config.Animation = "dance"
	e, err := New(&Game{ApplicationConfig: config})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer e.Shutdown()
	if err := e.Initialize(); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEngineReloadsChangedScene(t *testing.T) {
	e, _ := newTestEngine(t, func(c *ApplicationConfig) {
		c.Watch = true
		c.WatchDebounceMS = 10
		c.Animation = "wave"
	})
	before := e.Scene()
	if before.StackCount() != 2 {
		t.Fatalf("expected 2 animations, got %d", before.StackCount())
	}

	// drop the "bend" animation; the current stack is kept by name
	rig := bundledRig(t)
	start := strings.Index(rig, "[[animations]]\nname = \"bend\"")
	end := strings.Index(rig, "[[animations]]\nname = \"wave\"")
	if start < 0 || end < 0 {
		t.Fatalf("bundled rig layout changed")
	}
	replaceFile(t, e.scenePath, rig[:start]+rig[end:])

	deadline := time.Now().Add(5 * time.Second)
	for e.Scene() == before && time.Now().Before(deadline) {
		e.applyReloads()
		time.Sleep(10 * time.Millisecond)
	}
	after := e.Scene()
	if after == before {
		t.Fatalf("scene was not reloaded")
	}
	st, _ := after.Stack(e.Playback().Stack())
	if after.StackCount() != 1 || st.Name != "wave" {
		t.Errorf("expected only 'wave' after reload, got %d stacks playing %s", after.StackCount(), st.Name)
	}

	// a broken file keeps the previous scene
	replaceFile(t, e.scenePath, "[[nodes]\n")
	time.Sleep(100 * time.Millisecond)
	e.applyReloads()
	if e.Scene() != after {
		t.Errorf("a failed reload replaced the scene")
	}
}

func TestEngineSkinnedInstancesOwnTheirGeometry(t *testing.T) {
	// draw the arm a second time from the root, one unit below body
	rig := strings.Replace(bundledRig(t), "name = \"root\"\n", "name = \"root\"\nmeshes = [\"arm\"]\n", 1)
	e, _ := newTestEngineWithRig(t, rig, func(c *ApplicationConfig) { c.Animation = "wave" })
	e.playback.Advance(0.4)

	packet, err := e.drawFrame(0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	arms := []armDraw{}
	for _, item := range packet.Items {
		if item.MeshName == "arm" {
			arms = append(arms, armDraw{item.World, item.Geometry.Vertices, item.Geometry.Normals})
		}
	}
	if len(arms) != 2 {
		t.Fatalf("expected the arm to be drawn twice, got %d", len(arms))
	}
	fromRoot, fromBody := arms[0], arms[1]
	if &fromRoot.vertices[0] == &fromBody.vertices[0] || &fromRoot.normals[0] == &fromBody.normals[0] {
		t.Fatalf("both arm instances share one buffer")
	}
	down := math.NewVec3(0, -1, 0)
	for i := range fromRoot.vertices {
		if want := fromRoot.vertices[i].Add(down); !fromBody.vertices[i].Compare(want, 1e-4) {
			t.Errorf("vertex %d: expected %v under body, got %v", i, want, fromBody.vertices[i])
		}
		a := fromRoot.vertices[i].Transform(fromRoot.world)
		b := fromBody.vertices[i].Transform(fromBody.world)
		if !a.Compare(b, 1e-4) {
			t.Errorf("vertex %d: instances disagree in world space, %v and %v", i, a, b)
		}
	}

	// the next frame must not rewrite what the previous packet holds
	held := append([]math.Vec3(nil), fromRoot.vertices...)
	e.playback.Advance(0.4)
	if _, err := e.drawFrame(0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	for i := range held {
		if fromRoot.vertices[i] != held[i] {
			t.Fatalf("vertex %d of a delivered packet changed after the next frame", i)
		}
	}
}

// armDraw keeps the parts of a draw item the instance test compares.
type armDraw struct {
	world    math.Mat4
	vertices []math.Vec3
	normals  []math.Vec3
}

func TestEngineFailedReloadKeepsMeshes(t *testing.T) {
	e, _ := newTestEngine(t, func(c *ApplicationConfig) { c.MaxMeshCount = 2 })
	cache := e.systemManager.MeshCacheSystem
	before, err := cache.Get("arm")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	sc := e.Scene()

	// a third mesh does not fit a cache of two
	rig := bundledRig(t)
	at := strings.Index(rig, "[[animations]]")
	pebble := "[[meshes]]\nname = \"pebble\"\nnode = \"ground\"\n" +
		"control_points = [[0.0, 0.0, 0.0], [0.1, 0.0, 0.0], [0.0, 0.1, 0.0]]\n" +
		"polygon_vertices = [0, 1, 2]\n\n"
	writeFile(t, e.scenePath, rig[:at]+pebble+rig[at:])

	if err := e.loadScene(); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if e.Scene() != sc {
		t.Errorf("a failed reload replaced the scene")
	}
	if names := cache.Names(); len(names) != 2 || names[0] != "arm" || names[1] != "floor" {
		t.Errorf("expected the previous meshes, got %v", names)
	}
	if after, err := cache.Get("arm"); err != nil || after.ID != before.ID {
		t.Errorf("expected the previous arm entry to stay registered")
	}
	packet, err := e.drawFrame(0)
	if err != nil || packet.Stats.Failed != 0 || packet.Stats.Deformed != 1 {
		t.Errorf("expected the previous scene to draw cleanly, got %+v: %v", packet.Stats, err)
	}
	if e.asset == nil || e.asset.Data != sc {
		t.Errorf("expected the previous asset to stay loaded")
	}
}
