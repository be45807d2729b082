package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/assets"
	"github.com/spaghettifunk/anima-skinning/engine/assets/loaders"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
	"github.com/spaghettifunk/anima-skinning/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock
	lastTime      float64
	shutdownOnce  sync.Once

	scenePath string
	asset     *loaders.Asset
	scene     *scene.Scene
	playback  *scene.Playback
}

func New(g *Game) (*Engine, error) {
	config := g.ApplicationConfig
	if config == nil {
		config = DefaultApplicationConfig()
		g.ApplicationConfig = config
	}
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(config.Level())

	am, err := assets.NewAssetManager(time.Duration(config.WatchDebounceMS) * time.Millisecond)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(&systems.SystemManagerConfig{
		Workers:      config.Workers,
		MaxMeshCount: config.MaxMeshCount,
		MaxBoneCount: config.MaxBoneCount,
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		clock:         core.NewClock(),
		assetManager:  am,
		systemManager: sm,
		scenePath:     filepath.Clean(config.Scene),
		lastTime:      0,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageBootComplete

	e.currentStage = EngineStageInitializing
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	if e.gameInstance.ApplicationConfig.Watch {
		if err := e.assetManager.Initialize(filepath.Dir(e.scenePath)); err != nil {
			core.LogError(err.Error())
			return err
		}
		core.LogInfo("watching '%s' for changes", e.scenePath)
	}

	if err := e.loadScene(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Scene returns the scene currently drawn.
func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

func (e *Engine) Playback() *scene.Playback {
	return e.playback
}

/**
 * @brief Loads the scene file, binds the skin of every mesh and swaps the
 * result in. On failure the previous scene and its meshes stay in place.
 */
func (e *Engine) loadScene() error {
	asset, err := e.assetManager.LoadAsset(e.scenePath)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := e.swapScene(asset); err != nil {
		if uerr := e.assetManager.UnloadAsset(asset); uerr != nil {
			core.LogWarn("failed to unload '%s': %s", asset.FullPath, uerr.Error())
		}
		return err
	}
	if previous := e.asset; previous != nil {
		if err := e.assetManager.UnloadAsset(previous); err != nil {
			core.LogWarn("failed to unload '%s': %s", previous.FullPath, err.Error())
		}
	}
	e.asset = asset

	if e.gameInstance.FnOnReload != nil {
		if err := e.gameInstance.FnOnReload(e.scene); err != nil {
			return err
		}
	}
	return nil
}

// swapScene registers the meshes of asset on a staging cache and only
// replaces the live cache, scene and playback once all of them succeeded.
func (e *Engine) swapScene(asset *loaders.Asset) error {
	sc, ok := asset.Data.(*scene.Scene)
	if !ok {
		err := fmt.Errorf("asset '%s' is not a scene: %w", e.scenePath, core.ErrUnsupportedInput)
		core.LogError(err.Error())
		return err
	}

	stack, err := e.selectStack(sc)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	playback, err := scene.NewPlayback(sc, stack)
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	cache := e.systemManager.MeshCacheSystem
	staged := cache.Staging()
	skinned := 0
	for _, imp := range sc.Meshes() {
		skin, err := e.systemManager.SkinSystem.Bind(imp)
		if err != nil {
			return err
		}
		entry, err := staged.Register(imp, skin)
		if errors.Is(err, core.ErrMeshExists) {
			core.LogWarn("skipping mesh '%s', already registered", imp.Mesh.Name)
			continue
		}
		if err != nil {
			return err
		}
		if entry.Skin.HasSkin {
			skinned++
		}
	}

	cache.Replace(staged)
	e.scene = sc
	e.playback = playback
	core.LogInfo("scene '%s' loaded: %d nodes, %d meshes (%d skinned), %d animations",
		asset.Name, sc.NodeCount(), cache.Len(), skinned, sc.StackCount())
	return nil
}

// selectStack resolves the configured animation name, keeping the current
// stack across reloads when it still exists.
func (e *Engine) selectStack(sc *scene.Scene) (animation.Stack, error) {
	if sc.StackCount() == 0 {
		return animation.NoStack, nil
	}
	name := e.gameInstance.ApplicationConfig.Animation
	if e.playback != nil && e.playback.Stack() != animation.NoStack {
		if st, err := e.scene.Stack(e.playback.Stack()); err == nil {
			name = st.Name
		}
	}
	if name == "" {
		return 0, nil
	}
	for i := 0; i < sc.StackCount(); i++ {
		st, _ := sc.Stack(animation.Stack(i))
		if st.Name == name {
			return animation.Stack(i), nil
		}
	}
	if e.playback != nil {
		core.LogWarn("animation '%s' is gone after reload, playing the first one", name)
		return 0, nil
	}
	return animation.NoStack, fmt.Errorf("%w: no animation named '%s'", core.ErrInvalidConfig, name)
}

func (e *Engine) Run() error {
	config := e.gameInstance.ApplicationConfig
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var targetFrameSeconds float64 = 1.0 / config.FrameRate
	var frames uint64 = 0

	for e.isRunning.Load() {
		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var frameStartTime float64 = currentTime
		// animation time moves at a fixed step, independent of wall time
		var delta float64 = targetFrameSeconds

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}

		packet, err := e.drawFrame(delta)
		if err != nil {
			core.LogWarn("frame %d drew with %d failed meshes", packet.Frame, packet.Stats.Failed)
		}

		// Call the game's render routine.
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(packet, delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				return err
			}
		}
		e.playback.Advance(delta)

		// Figure out how long the frame took and, if below the target, sleep.
		e.clock.Update()
		var frameElapsedTime float64 = e.clock.Elapsed() - frameStartTime
		core.MetricsUpdate(frameElapsedTime)
		if config.Realtime {
			if remainingSeconds := targetFrameSeconds - frameElapsedTime; remainingSeconds > 0 {
				time.Sleep(time.Duration(remainingSeconds * float64(time.Second)))
			}
		}

		frames++
		if config.MetricsInterval > 0 && frames%config.MetricsInterval == 0 {
			m := core.MetricsSnapshot()
			core.LogInfo("frame %d: %.1f fps, %.3f ms avg, %d deformed, %d passthrough, %d failed",
				frames, m.FPS, m.MSavg, m.Deformed, m.Passthrough, m.Failed)
		}
		if config.Frames > 0 && frames >= config.Frames {
			e.isRunning.Store(false)
		}

		e.applyReloads()
		e.lastTime = currentTime
	}

	m := core.MetricsSnapshot()
	core.LogInfo("%s stopped after %d frames, %d mesh failures", config.Name, m.TotalFrames, m.TotalFailed)
	return nil
}

func (e *Engine) drawFrame(delta float64) (*RenderPacket, error) {
	packet := &RenderPacket{
		Time:      e.playback.Time(),
		DeltaTime: delta,
		Stack:     e.playback.Stack(),
	}
	var mu sync.Mutex
	stats, err := e.systemManager.FrameSystem.DrawFrame(e.scene, packet.Stack, packet.Time, func(item systems.DrawItem) {
		// the deformed buffer is rewritten by the next instance of the same mesh
		if item.Skinned {
			item.Geometry = ownGeometry(item.Geometry)
		}
		mu.Lock()
		packet.Items = append(packet.Items, item)
		mu.Unlock()
	})
	sort.Slice(packet.Items, func(i, j int) bool {
		a, b := packet.Items[i], packet.Items[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.MeshName < b.MeshName
	})
	packet.Frame = stats.Frame
	packet.Stats = stats
	core.MetricsRecordMeshes(stats.Deformed, stats.Passthrough, stats.Failed)
	return packet, err
}

// ownGeometry copies the per-frame positions and normals of md. Topology is
// shared with the reference mesh.
func ownGeometry(md *resources.MeshData) *resources.MeshData {
	owned := *md
	owned.Vertices = append([]math.Vec3(nil), md.Vertices...)
	if md.HasNormals() {
		owned.Normals = append([]math.Vec3(nil), md.Normals...)
	}
	return &owned
}

// applyReloads reloads the scene if its file changed since the last frame.
func (e *Engine) applyReloads() {
	if !e.gameInstance.ApplicationConfig.Watch {
		return
	}
	for {
		select {
		case path, ok := <-e.assetManager.Changes():
			if !ok {
				return
			}
			if path != e.scenePath {
				continue
			}
			core.LogInfo("'%s' changed, reloading", path)
			if err := e.loadScene(); err != nil {
				core.LogError("reload failed, keeping the previous scene: %s", err.Error())
			}
		default:
			return
		}
	}
}

// Stop asks Run to return after the current frame.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.isRunning.Store(false)
		if e.gameInstance.FnShutdown != nil {
			if serr := e.gameInstance.FnShutdown(); serr != nil {
				core.LogError(serr.Error())
				err = serr
			}
		}
		if serr := e.assetManager.Shutdown(); serr != nil {
			core.LogError(serr.Error())
			err = errors.Join(err, serr)
		}
		if serr := e.systemManager.Shutdown(); serr != nil {
			core.LogError(serr.Error())
			err = errors.Join(err, serr)
		}
	})
	return err
}
