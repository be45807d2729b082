package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
)

/** @brief The skin system configuration. */
type SkinSystemConfig struct {
	/**
	 * @brief The maximum number of clusters a mesh may be bound to.
	 * Zero means unlimited.
	 */
	MaxBoneCount uint32
}

type SkinSystem struct {
	Config *SkinSystemConfig
}

func NewSkinSystem(config *SkinSystemConfig) (*SkinSystem, error) {
	if config == nil {
		err := fmt.Errorf("func NewSkinSystem - config must not be nil: %w", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
	return &SkinSystem{Config: config}, nil
}

func (ss *SkinSystem) Shutdown() error {
	return nil
}

/**
 * @brief Builds the static weight table of an imported mesh. Only the first
 * skin deformer is considered. Every vertex array position expanded from a
 * control point receives that control point's weight.
 *
 * @param imp The imported mesh with its deformers. Not modified.
 * @return The binding, with HasSkin false for meshes without clusters.
 */
func (ss *SkinSystem) Bind(imp *resources.MeshImport) (*resources.SkinBinding, error) {
	if imp == nil || imp.Mesh == nil {
		err := fmt.Errorf("func Bind - %w: no mesh to bind", core.ErrInvalidMesh)
		core.LogError(err.Error())
		return nil, err
	}
	name := imp.Mesh.Name

	if len(imp.Skins) == 0 || len(imp.Skins[0].Clusters) == 0 {
		core.LogDebug("mesh '%s' has no skin, treating it as static", name)
		return resources.NoSkin(), nil
	}
	if len(imp.Skins) > 1 {
		core.LogWarn("mesh '%s' has %d skin deformers, only the first one is used", name, len(imp.Skins))
	}
	clusters := imp.Skins[0].Clusters
	if ss.Config.MaxBoneCount > 0 && uint32(len(clusters)) > ss.Config.MaxBoneCount {
		err := fmt.Errorf("mesh '%s': %w: %d clusters exceeds the limit of %d",
			name, core.ErrUnsupportedInput, len(clusters), ss.Config.MaxBoneCount)
		core.LogError(err.Error())
		return nil, err
	}

	vertexCount := imp.Mesh.VertexCount()
	if len(imp.PolygonVertices) != vertexCount {
		err := fmt.Errorf("mesh '%s': %w: %d polygon vertices for %d vertices",
			name, core.ErrInvalidMesh, len(imp.PolygonVertices), vertexCount)
		core.LogError(err.Error())
		return nil, err
	}

	byControlPoint := invertPolygonVertices(imp.PolygonVertices)
	boneCount := len(clusters)
	weights := make([]float32, vertexCount*boneCount)
	bones := make([]resources.BoneBinding, boneCount)

	for ci := range clusters {
		cl := &clusters[ci]
		if cl.LinkMode != resources.LinkModeNormalize {
			err := fmt.Errorf("mesh '%s' cluster %d: %w: link mode '%s', only '%s' is supported",
				name, ci, core.ErrUnsupportedInput, cl.LinkMode, resources.LinkModeNormalize)
			core.LogError(err.Error())
			return nil, err
		}
		if !cl.Bone.Valid() {
			err := fmt.Errorf("mesh '%s' cluster %d: %w: cluster has no bone", name, ci, core.ErrLookupFailure)
			core.LogError(err.Error())
			return nil, err
		}
		if len(cl.Indices) != len(cl.Weights) {
			err := fmt.Errorf("mesh '%s' cluster %d: %w: %d indices with %d weights",
				name, ci, core.ErrUnsupportedInput, len(cl.Indices), len(cl.Weights))
			core.LogError(err.Error())
			return nil, err
		}

		for k, w := range cl.Weights {
			// also rejects NaN
			if !(w >= 0 && w <= 1) {
				err := fmt.Errorf("mesh '%s' cluster %d: %w: weight %d is %f, outside [0, 1]",
					name, ci, core.ErrUnsupportedInput, k, w)
				core.LogError(err.Error())
				return nil, err
			}
		}

		for k, cp := range cl.Indices {
			if cp < 0 || int(cp) >= len(byControlPoint) {
				continue
			}
			for _, v := range byControlPoint[cp] {
				weights[int(v)*boneCount+ci] = cl.Weights[k]
			}
		}
		bones[ci] = resources.BoneBinding{
			Bone:              cl.Bone,
			BindTransform:     cl.Transform,
			BindLinkTransform: cl.TransformLink,
		}
	}

	sb, err := resources.NewSkinBinding(bones, vertexCount, weights)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("mesh '%s' bound to %d bones over %d vertices", name, boneCount, vertexCount)
	return sb, nil
}

// invertPolygonVertices maps each control point to every vertex position
// expanded from it.
func invertPolygonVertices(polygonVertices []int32) [][]int32 {
	maxCP := int32(-1)
	for _, cp := range polygonVertices {
		if cp > maxCP {
			maxCP = cp
		}
	}
	index := make([][]int32, maxCP+1)
	for v, cp := range polygonVertices {
		if cp < 0 {
			continue
		}
		index[cp] = append(index[cp], int32(v))
	}
	return index
}
