package systems

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
)

/**
 * @brief A registered mesh: the reference geometry, its skin and, for
 * skinned meshes, the buffer deformed in place every frame.
 */
type MeshEntry struct {
	ID        uuid.UUID
	Reference *resources.ReferenceMesh
	Skin      *resources.SkinBinding
	/** @brief nil unless Skin.HasSkin. */
	Deformed *resources.DeformedMesh
	/** @brief The node the mesh geometry hangs off. */
	Node animation.Handle

	// per bone, filled on the first deform
	bindRefs []math.Mat4
	// per bone skinning matrices, rebuilt every deform
	skinning []math.Mat4
}

func (me *MeshEntry) Name() string {
	return me.Reference.Name
}

/** @brief The mesh cache configuration. */
type MeshCacheSystemConfig struct {
	/** @brief The maximum number of meshes that can be registered. */
	MaxMeshCount uint32
}

type MeshCacheSystem struct {
	Config   *MeshCacheSystemConfig
	deformer *DeformerSystem

	mu      sync.RWMutex
	entries map[string]*MeshEntry
}

func NewMeshCacheSystem(config *MeshCacheSystemConfig, ds *DeformerSystem) (*MeshCacheSystem, error) {
	if config.MaxMeshCount == 0 {
		err := fmt.Errorf("func NewMeshCacheSystem - config.MaxMeshCount must be > 0: %w", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	if ds == nil {
		err := fmt.Errorf("func NewMeshCacheSystem - a deformer system is required: %w", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	return &MeshCacheSystem{
		Config:   config,
		deformer: ds,
		entries:  make(map[string]*MeshEntry),
	}, nil
}

// DeformerSystem returns the deformer used for skinned entries.
func (mcs *MeshCacheSystem) DeformerSystem() *DeformerSystem {
	return mcs.deformer
}

func (mcs *MeshCacheSystem) Shutdown() error {
	mcs.Clear()
	return nil
}

/**
 * @brief Registers an imported mesh with its skin binding under the mesh name.
 * Skinned meshes get their deformed buffer allocated here, once.
 *
 * @return The new entry, or an error wrapping core.ErrMeshExists for a name
 * already registered.
 */
func (mcs *MeshCacheSystem) Register(imp *resources.MeshImport, skin *resources.SkinBinding) (*MeshEntry, error) {
	if imp == nil || imp.Mesh == nil {
		err := fmt.Errorf("func Register - %w: no mesh to register", core.ErrInvalidMesh)
		core.LogError(err.Error())
		return nil, err
	}
	ref := imp.Mesh
	if skin == nil {
		skin = resources.NoSkin()
	}
	if skin.HasSkin && skin.VertexCount() != ref.VertexCount() {
		err := fmt.Errorf("mesh '%s': %w: skin has %d rows for %d vertices",
			ref.Name, core.ErrInvalidMesh, skin.VertexCount(), ref.VertexCount())
		core.LogError(err.Error())
		return nil, err
	}

	mcs.mu.Lock()
	defer mcs.mu.Unlock()

	if _, ok := mcs.entries[ref.Name]; ok {
		return nil, fmt.Errorf("mesh '%s': %w", ref.Name, core.ErrMeshExists)
	}
	if uint32(len(mcs.entries)) >= mcs.Config.MaxMeshCount {
		err := fmt.Errorf("mesh '%s': %w: cache is full with %d meshes", ref.Name, core.ErrInvalidConfig, len(mcs.entries))
		core.LogError(err.Error())
		return nil, err
	}

	entry := &MeshEntry{
		ID:        uuid.New(),
		Reference: ref,
		Skin:      skin,
		Node:      ref.Node,
	}
	if skin.HasSkin {
		entry.Deformed = resources.NewDeformedMesh(ref)
		entry.skinning = make([]math.Mat4, skin.BoneCount())
	}
	mcs.entries[ref.Name] = entry
	core.LogDebug("registered mesh '%s' (%s), skinned: %t", ref.Name, entry.ID, skin.HasSkin)
	return entry, nil
}

// Get returns the entry registered under name.
func (mcs *MeshCacheSystem) Get(name string) (*MeshEntry, error) {
	mcs.mu.RLock()
	defer mcs.mu.RUnlock()
	entry, ok := mcs.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: mesh '%s' is not registered", core.ErrLookupFailure, name)
	}
	return entry, nil
}

/**
 * @brief Produces the geometry to draw for a mesh this frame.
 *
 * @param parentGlobal The current global transform of the node drawing the mesh.
 * @return The reference geometry itself for static meshes, the freshly
 * deformed buffer for skinned ones.
 */
func (mcs *MeshCacheSystem) Acquire(name string, parentGlobal math.Mat4, pose animation.PoseEvaluator, stack animation.Stack, time float64, frame uint64) (*resources.MeshData, error) {
	entry, err := mcs.Get(name)
	if err != nil {
		return nil, err
	}
	return mcs.AcquireEntry(entry, parentGlobal, pose, stack, time, frame)
}

// AcquireEntry is Acquire for an entry already looked up.
func (mcs *MeshCacheSystem) AcquireEntry(entry *MeshEntry, parentGlobal math.Mat4, pose animation.PoseEvaluator, stack animation.Stack, time float64, frame uint64) (*resources.MeshData, error) {
	if !entry.Skin.HasSkin {
		return &entry.Reference.MeshData, nil
	}
	dm, err := mcs.deformer.Deform(entry, parentGlobal, pose, stack, time, frame)
	if err != nil {
		return nil, err
	}
	return &dm.MeshData, nil
}

// Names returns the registered mesh names, sorted.
func (mcs *MeshCacheSystem) Names() []string {
	mcs.mu.RLock()
	defer mcs.mu.RUnlock()
	names := make([]string, 0, len(mcs.entries))
	for n := range mcs.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (mcs *MeshCacheSystem) Len() int {
	mcs.mu.RLock()
	defer mcs.mu.RUnlock()
	return len(mcs.entries)
}

// Clear drops every entry.
func (mcs *MeshCacheSystem) Clear() {
	mcs.mu.Lock()
	defer mcs.mu.Unlock()
	mcs.entries = make(map[string]*MeshEntry)
}

/**
 * @brief Returns an empty cache with the same configuration and deformer.
 * Entries registered on it are swapped in with Replace.
 */
func (mcs *MeshCacheSystem) Staging() *MeshCacheSystem {
	return &MeshCacheSystem{
		Config:   mcs.Config,
		deformer: mcs.deformer,
		entries:  make(map[string]*MeshEntry),
	}
}

// Replace drops every entry and takes over the entries of staged, which is
// left empty.
func (mcs *MeshCacheSystem) Replace(staged *MeshCacheSystem) {
	if staged == mcs {
		return
	}
	staged.mu.Lock()
	entries := staged.entries
	staged.entries = make(map[string]*MeshEntry)
	staged.mu.Unlock()

	mcs.mu.Lock()
	defer mcs.mu.Unlock()
	mcs.entries = entries
}
