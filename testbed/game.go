package testbed

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/anima-skinning/engine"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
)

type TestGame struct {
	*engine.Game
}

/** @brief What the testbed saw of one mesh over the run. */
type MeshSummary struct {
	Name    string
	Skinned bool
	Draws   uint64
	// union of the world space extents of every draw
	Extents math.Extents3D
	// world space centre of the last draw
	LastCenter math.Vec3
}

type gameState struct {
	frames  uint64
	elapsed float64
	meshes  map[string]*MeshSummary
	// world space positions of the item being summarised
	scratch []math.Vec3
}

func NewTestGame(config *engine.ApplicationConfig) (*TestGame, error) {
	if config == nil {
		return nil, fmt.Errorf("the testbed needs an application config: %w", core.ErrInvalidConfig)
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				meshes: make(map[string]*MeshSummary),
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnReload = tg.OnReload
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers ")
	}
	core.LogInfo("testbed tracking meshes %v", g.SystemManager.MeshCacheSystem.Names())
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime
	return nil
}

// Render folds the world space extents of every delivered mesh into its summary.
func (g *TestGame) Render(packet *engine.RenderPacket, deltaTime float64) error {
	state := g.State.(*gameState)
	state.frames++

	for _, item := range packet.Items {
		vertices := item.Geometry.Vertices
		if cap(state.scratch) < len(vertices) {
			state.scratch = make([]math.Vec3, len(vertices))
		}
		world := state.scratch[:len(vertices)]
		for i, v := range vertices {
			world[i] = v.Transform(item.World)
		}
		extents, center := math.GeometryCalculateExtents(world)

		s, ok := state.meshes[item.MeshName]
		if !ok {
			s = &MeshSummary{Name: item.MeshName, Skinned: item.Skinned, Extents: extents}
			state.meshes[item.MeshName] = s
		}
		s.Draws++
		s.Extents.Min = s.Extents.Min.Min(extents.Min)
		s.Extents.Max = s.Extents.Max.Max(extents.Max)
		s.LastCenter = center
	}
	return nil
}

// OnReload starts the summaries over for the new scene.
func (g *TestGame) OnReload(sc *scene.Scene) error {
	state := g.State.(*gameState)
	if len(state.meshes) > 0 {
		core.LogInfo("scene reloaded, resetting %d mesh summaries", len(state.meshes))
	}
	state.meshes = make(map[string]*MeshSummary)
	return nil
}

// Summaries returns the per mesh summaries sorted by name.
func (g *TestGame) Summaries() []MeshSummary {
	state := g.State.(*gameState)
	out := make([]MeshSummary, 0, len(state.meshes))
	for _, s := range state.meshes {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *TestGame) Frames() uint64 {
	return g.State.(*gameState).frames
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed saw %d frames over %.3fs of animation", state.frames, state.elapsed)
	for _, s := range g.Summaries() {
		core.LogInfo("  %-12s skinned=%-5t draws=%-6d min=[%.3f, %.3f, %.3f] max=[%.3f, %.3f, %.3f] last centre=[%.3f, %.3f, %.3f]",
			s.Name, s.Skinned, s.Draws,
			s.Extents.Min.X, s.Extents.Min.Y, s.Extents.Min.Z,
			s.Extents.Max.X, s.Extents.Max.Y, s.Extents.Max.Z,
			s.LastCenter.X, s.LastCenter.Y, s.LastCenter.Z)
	}
	return nil
}
