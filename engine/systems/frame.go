package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
)

/** @brief One mesh instance ready to be drawn. */
type DrawItem struct {
	Node     animation.Handle
	MeshName string
	/** @brief The global transform of the node drawing the mesh. */
	World math.Mat4
	/**
	 * @brief The geometry to draw. Valid until the next frame deforms the
	 * same mesh.
	 */
	Geometry *resources.MeshData
	Skinned  bool
}

/**
 * @brief Receives the draw items of a frame. With more than one worker it is
 * called concurrently for different meshes.
 */
type DrawFunc func(item DrawItem)

type FrameStats struct {
	Frame       uint64
	Time        float64
	Nodes       uint32
	Deformed    uint32
	Passthrough uint32
	Failed      uint32
}

/** @brief The frame system configuration. */
type FrameSystemConfig struct {
	/** @brief Meshes are deformed on the job system when greater than 1. */
	Workers int
}

type FrameSystem struct {
	Config *FrameSystemConfig
	cache  *MeshCacheSystem
	jobs   *JobSystem
	frame  uint64
}

type meshInstance struct {
	node  animation.Handle
	world math.Mat4
}

// all instances of one entry in a frame, processed by a single worker
type meshGroup struct {
	entry     *MeshEntry
	instances []meshInstance
}

func NewFrameSystem(config *FrameSystemConfig, cache *MeshCacheSystem, js *JobSystem) (*FrameSystem, error) {
	if cache == nil {
		err := fmt.Errorf("func NewFrameSystem - a mesh cache is required: %w", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	if config.Workers > 1 && js == nil {
		err := fmt.Errorf("func NewFrameSystem - %d workers requested without a job system: %w", config.Workers, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	return &FrameSystem{
		Config: config,
		cache:  cache,
		jobs:   js,
	}, nil
}

func (fs *FrameSystem) Shutdown() error {
	return nil
}

// FrameCount returns the number of frames drawn so far.
func (fs *FrameSystem) FrameCount() uint64 {
	return fs.frame
}

/**
 * @brief Draws one frame: walks the visible nodes of sc, evaluates their
 * global transforms and hands every attached mesh to sink, deforming skinned
 * meshes first. A mesh that fails is logged, counted and skipped.
 *
 * @return The frame counters and the joined per-mesh errors, if any.
 */
func (fs *FrameSystem) DrawFrame(sc *scene.Scene, stack animation.Stack, time float64, sink DrawFunc) (FrameStats, error) {
	fs.frame++
	stats := FrameStats{Frame: fs.frame, Time: time}

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		core.LogError(err.Error())
		mu.Lock()
		errs = append(errs, err)
		stats.Failed++
		mu.Unlock()
	}

	groups := make([]*meshGroup, 0)
	byEntry := make(map[*MeshEntry]*meshGroup)
	err := sc.Walk(func(h animation.Handle, n *scene.Node) error {
		stats.Nodes++
		if len(n.Meshes) == 0 {
			return nil
		}
		world, err := sc.GlobalTransform(h, stack, time)
		if err != nil {
			for range n.Meshes {
				fail(fmt.Errorf("node '%s': %w", n.Name, err))
			}
			return nil
		}
		for _, name := range n.Meshes {
			entry, err := fs.cache.Get(name)
			if err != nil {
				fail(fmt.Errorf("node '%s': %w", n.Name, err))
				continue
			}
			g, ok := byEntry[entry]
			if !ok {
				g = &meshGroup{entry: entry}
				byEntry[entry] = g
				groups = append(groups, g)
			}
			g.instances = append(g.instances, meshInstance{node: h, world: world})
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	draw := func(g *meshGroup) {
		for _, inst := range g.instances {
			geometry, err := fs.cache.AcquireEntry(g.entry, inst.world, sc, stack, time, fs.frame)
			if err != nil {
				fail(err)
				continue
			}
			mu.Lock()
			if g.entry.Skin.HasSkin {
				stats.Deformed++
			} else {
				stats.Passthrough++
			}
			mu.Unlock()
			if sink != nil {
				sink(DrawItem{
					Node:     inst.node,
					MeshName: g.entry.Name(),
					World:    inst.world,
					Geometry: geometry,
					Skinned:  g.entry.Skin.HasSkin,
				})
			}
		}
	}

	if fs.jobs == nil || fs.Config.Workers <= 1 {
		for _, g := range groups {
			draw(g)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(groups))
		for _, g := range groups {
			fs.jobs.Submit(JobTask{
				InputParams: g,
				OnStart: func(params interface{}) error {
					draw(params.(*meshGroup))
					return nil
				},
				OnCompletionCallback: wg.Done,
			})
		}
		wg.Wait()
	}

	return stats, errors.Join(errs...)
}
