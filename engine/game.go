package engine

import (
	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
	"github.com/spaghettifunk/anima-skinning/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnReload        OnReload
	FnShutdown        Shutdown
}

/**
 * @brief Everything drawn in one frame. Skinned items own their positions and
 * normals; unskinned items point at the reference mesh and must not be modified.
 */
type RenderPacket struct {
	Frame     uint64
	Time      float64
	DeltaTime float64
	Stack     animation.Stack
	// sorted by node, then mesh name
	Items []systems.DrawItem
	Stats systems.FrameStats
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime float64) error
type Render func(packet *RenderPacket, deltaTime float64) error
type OnReload func(sc *scene.Scene) error
type Shutdown func() error
