package resources

import (
	"fmt"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
)

// NewReferenceMesh validates data and wraps it as an immutable reference mesh.
func NewReferenceMesh(name string, node animation.Handle, data MeshData) (*ReferenceMesh, error) {
	if err := validateMeshData(&data); err != nil {
		return nil, fmt.Errorf("mesh '%s': %w", name, err)
	}
	return &ReferenceMesh{
		Name:     name,
		Node:     node,
		MeshData: data,
	}, nil
}

func validateMeshData(md *MeshData) error {
	vc := len(md.Vertices)
	if md.HasNormals() && len(md.Normals) != vc {
		return fmt.Errorf("%w: %d normals for %d vertices", core.ErrInvalidMesh, len(md.Normals), vc)
	}
	if md.HasTexCoords() && len(md.TexCoords) != vc {
		return fmt.Errorf("%w: %d texture coordinates for %d vertices", core.ErrInvalidMesh, len(md.TexCoords), vc)
	}
	for i, tri := range md.Triangles {
		for _, idx := range tri {
			if int(idx) >= vc {
				return fmt.Errorf("%w: triangle %d references vertex %d of %d", core.ErrInvalidMesh, i, idx, vc)
			}
		}
	}
	return nil
}

/**
 * @brief Builds a reference mesh the way the importer lays out triangulated
 * geometry: every polygon vertex gets its own slot in the vertex array (so a
 * control point shared by several polygons is duplicated), and every three
 * consecutive slots form a triangle.
 *
 * @param controlPoints The deduplicated positions.
 * @param polygonVertices Control point index per polygon vertex. Length must be a multiple of 3.
 * @param normals Per polygon vertex normals. Ignored unless parallel to polygonVertices.
 * @param uvs Per polygon vertex texture coordinates. Ignored unless parallel to polygonVertices.
 * @return The reference mesh, or an error wrapping core.ErrInvalidMesh.
 */
func ExpandControlPoints(name string, node animation.Handle, controlPoints []math.Vec3, polygonVertices []int32, normals []math.Vec3, uvs []math.Vec2) (*ReferenceMesh, error) {
	if len(polygonVertices)%3 != 0 {
		return nil, fmt.Errorf("mesh '%s': %w: %d polygon vertices is not a whole number of triangles",
			name, core.ErrInvalidMesh, len(polygonVertices))
	}

	data := MeshData{
		Vertices:  make([]math.Vec3, len(polygonVertices)),
		Triangles: make([]Triangle, len(polygonVertices)/3),
	}
	for i, cp := range polygonVertices {
		if cp < 0 || int(cp) >= len(controlPoints) {
			return nil, fmt.Errorf("mesh '%s': %w: polygon vertex %d references control point %d of %d",
				name, core.ErrInvalidMesh, i, cp, len(controlPoints))
		}
		data.Vertices[i] = controlPoints[cp]
	}
	for i := range data.Triangles {
		base := uint32(i * 3)
		data.Triangles[i] = Triangle{base, base + 1, base + 2}
	}

	if len(normals) > 0 {
		if len(normals) == len(polygonVertices) {
			data.Normals = append([]math.Vec3(nil), normals...)
		} else {
			core.LogWarn("mesh '%s': ignoring %d normals for %d polygon vertices", name, len(normals), len(polygonVertices))
		}
	}
	if len(uvs) > 0 {
		if len(uvs) == len(polygonVertices) {
			data.TexCoords = append([]math.Vec2(nil), uvs...)
		} else {
			core.LogWarn("mesh '%s': ignoring %d uvs for %d polygon vertices", name, len(uvs), len(polygonVertices))
		}
	}

	core.LogDebug("mesh '%s': %d control points expanded to %d vertices, %d normals, %d uvs",
		name, len(controlPoints), len(data.Vertices), len(data.Normals), len(data.TexCoords))

	return NewReferenceMesh(name, node, data)
}
