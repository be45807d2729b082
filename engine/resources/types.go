package resources

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
)

/** @brief A triangle, as three indices into the vertex array of its mesh. */
type Triangle [3]uint32

/**
 * @brief Geometry shared by reference and deformed meshes. Normals and
 * texture coordinates are either empty or parallel to Vertices.
 */
type MeshData struct {
	/** @brief The vertex positions. */
	Vertices []math.Vec3
	/** @brief The vertex normals, if the source supplied them. */
	Normals []math.Vec3
	/** @brief The texture coordinates of the first uv set, if any. */
	TexCoords []math.Vec2
	/** @brief The triangles. */
	Triangles []Triangle
}

func (md *MeshData) HasNormals() bool {
	return len(md.Normals) > 0
}

func (md *MeshData) HasTexCoords() bool {
	return len(md.TexCoords) > 0
}

func (md *MeshData) VertexCount() int {
	return len(md.Vertices)
}

/**
 * @brief An imported mesh in its bind pose. Never modified after creation.
 */
type ReferenceMesh struct {
	/** @brief The mesh name, used as the cache key. */
	Name string
	/** @brief The scene node the mesh geometry hangs off. */
	Node animation.Handle
	MeshData
}

/**
 * @brief The per-frame output for a skinned mesh. Positions and normals are
 * owned by the buffer, texture coordinates and triangles are shared with the
 * reference mesh and must not be modified.
 */
type DeformedMesh struct {
	MeshData
	/** @brief The frame number of the last successful write. */
	Frame uint64
	/** @brief The animation time of the last successful write. */
	Time float64
}

// NewDeformedMesh allocates a buffer with the topology of ref.
func NewDeformedMesh(ref *ReferenceMesh) *DeformedMesh {
	dm := &DeformedMesh{
		MeshData: MeshData{
			Vertices:  make([]math.Vec3, len(ref.Vertices)),
			TexCoords: ref.TexCoords,
			Triangles: ref.Triangles,
		},
	}
	if ref.HasNormals() {
		dm.Normals = make([]math.Vec3, len(ref.Normals))
	}
	return dm
}

/** @brief How a cluster's weights combine with the others on a vertex. */
type LinkMode int

const (
	/** @brief Weights are renormalized over the active influences. The only supported mode. */
	LinkModeNormalize LinkMode = iota
	/** @brief Weights are added on top of the mesh's own transform. */
	LinkModeAdditive
	/** @brief Weights are expected to sum to exactly one. */
	LinkModeTotalOne
)

func (lm LinkMode) String() string {
	switch lm {
	case LinkModeNormalize:
		return "normalize"
	case LinkModeAdditive:
		return "additive"
	case LinkModeTotalOne:
		return "total_one"
	}
	return fmt.Sprintf("LinkMode(%d)", int(lm))
}

// ParseLinkMode maps the importer's string form to a LinkMode.
func ParseLinkMode(s string) (LinkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normalize", "":
		return LinkModeNormalize, nil
	case "additive":
		return LinkModeAdditive, nil
	case "total_one", "totalone":
		return LinkModeTotalOne, nil
	}
	return LinkModeNormalize, fmt.Errorf("%w: unknown link mode '%s'", core.ErrUnsupportedInput, s)
}

/**
 * @brief A bone's influence set as delivered by the importer.
 */
type Cluster struct {
	/** @brief The bone node driving this cluster. */
	Bone animation.Handle
	/** @brief The blending mode declared by the cluster. */
	LinkMode LinkMode
	/** @brief Control point indices affected by the bone. */
	Indices []int32
	/** @brief One weight per entry of Indices. */
	Weights []float32
	/** @brief The global transform of the mesh at bind time. */
	Transform math.Mat4
	/** @brief The global transform of the bone at bind time. */
	TransformLink math.Mat4
}

/** @brief A skin deformer: the list of clusters of one mesh. */
type SkinDeformer struct {
	Clusters []Cluster
}

/**
 * @brief Everything the importer hands over for one mesh. PolygonVertices maps
 * every position of the reference vertex array back to its control point.
 */
type MeshImport struct {
	Mesh            *ReferenceMesh
	PolygonVertices []int32
	Skins           []SkinDeformer
}

/**
 * @brief Bind-time data of one influencing bone. Its column in the weight
 * table is its position in SkinBinding.Bones.
 */
type BoneBinding struct {
	/** @brief The bone node, resolved through the pose evaluator every frame. */
	Bone animation.Handle
	/** @brief The mesh's global transform at bind time. */
	BindTransform math.Mat4
	/** @brief The bone's global transform at bind time. */
	BindLinkTransform math.Mat4
}

/**
 * @brief Static per-mesh skinning tables. Immutable once built.
 */
type SkinBinding struct {
	HasSkin bool
	Bones   []BoneBinding
	// row-major, one row of len(Bones) weights per vertex
	weights     []float32
	vertexCount int
}

// NewSkinBinding wraps a weight table of vertexCount rows by len(bones) columns.
// The table is owned by the binding afterwards.
func NewSkinBinding(bones []BoneBinding, vertexCount int, weights []float32) (*SkinBinding, error) {
	if len(weights) != vertexCount*len(bones) {
		return nil, fmt.Errorf("%w: weight table of %d entries does not match %d vertices by %d bones",
			core.ErrInvalidMesh, len(weights), vertexCount, len(bones))
	}
	return &SkinBinding{
		HasSkin:     len(bones) > 0,
		Bones:       bones,
		weights:     weights,
		vertexCount: vertexCount,
	}, nil
}

// NoSkin is the binding of a purely static mesh.
func NoSkin() *SkinBinding {
	return &SkinBinding{}
}

func (sb *SkinBinding) VertexCount() int {
	return sb.vertexCount
}

func (sb *SkinBinding) BoneCount() int {
	return len(sb.Bones)
}

// Weight returns the influence of bone b on vertex v.
func (sb *SkinBinding) Weight(v, b int) float32 {
	return sb.weights[v*len(sb.Bones)+b]
}

// Row returns the weights of vertex v, one per bone. The slice aliases the
// table and must not be modified.
func (sb *SkinBinding) Row(v int) []float32 {
	n := len(sb.Bones)
	return sb.weights[v*n : (v+1)*n : (v+1)*n]
}
