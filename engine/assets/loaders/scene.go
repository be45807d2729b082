package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
	"github.com/spaghettifunk/anima-skinning/engine/scene"
)

type sceneFile struct {
	Nodes      []nodeDesc      `toml:"nodes"`
	Meshes     []meshDesc      `toml:"meshes"`
	Animations []animationDesc `toml:"animations"`
}

type nodeDesc struct {
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
	Hidden bool   `toml:"hidden"`
	// Euler XYZ degrees for rotations
	Translation          []float32 `toml:"translation"`
	Rotation             []float32 `toml:"rotation"`
	Scale                []float32 `toml:"scale"`
	GeometricTranslation []float32 `toml:"geometric_translation"`
	GeometricRotation    []float32 `toml:"geometric_rotation"`
	GeometricScale       []float32 `toml:"geometric_scale"`
	// extra meshes drawn by this node, on top of the ones hanging off it
	Meshes []string `toml:"meshes"`
}

type meshDesc struct {
	Name            string      `toml:"name"`
	Node            string      `toml:"node"`
	ControlPoints   [][]float32 `toml:"control_points"`
	PolygonVertices []int32     `toml:"polygon_vertices"`
	Normals         [][]float32 `toml:"normals"`
	UVs             [][]float32 `toml:"uvs"`
	Skins           []skinDesc  `toml:"skins"`
}

type skinDesc struct {
	Clusters []clusterDesc `toml:"clusters"`
}

type clusterDesc struct {
	Bone     string    `toml:"bone"`
	LinkMode string    `toml:"link_mode"`
	Indices  []int32   `toml:"indices"`
	Weights  []float32 `toml:"weights"`
	// 16 values in row-vector order; the rest pose globals when omitted
	Transform     []float32 `toml:"transform"`
	TransformLink []float32 `toml:"transform_link"`
}

type animationDesc struct {
	Name   string      `toml:"name"`
	Start  float64     `toml:"start"`
	Stop   float64     `toml:"stop"`
	Curves []curveDesc `toml:"curves"`
}

type curveDesc struct {
	Node        string    `toml:"node"`
	Translation []keyDesc `toml:"translation"`
	Rotation    []keyDesc `toml:"rotation"`
	Scale       []keyDesc `toml:"scale"`
}

type keyDesc struct {
	Time  float64   `toml:"time"`
	Value []float32 `toml:"value"`
}

/**
 * @brief Loads TOML rig descriptions: a node hierarchy, meshes given as
 * control points expanded through polygon vertices with their skins, and
 * animation stacks of per node keys. Unknown keys are rejected.
 */
type SceneLoader struct{}

func (sl *SceneLoader) Load(path string) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".scene.toml")
	sc, err := sl.Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("scene '%s': %w", path, err)
	}
	return &Asset{
		Name:     name,
		FullPath: path,
		Type:     AssetTypeScene,
		DataSize: uint64(len(data)),
		Data:     sc,
	}, nil
}

// Unload drops the scene held by asset.
func (sl *SceneLoader) Unload(asset *Asset) error {
	if asset == nil {
		return nil
	}
	asset.Data = nil
	asset.DataSize = 0
	return nil
}

// Parse builds a scene, with its meshes attached, from a TOML description.
func (sl *SceneLoader) Parse(name string, data []byte) (*scene.Scene, error) {
	var sf sceneFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedInput, strict.String())
		}
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedInput, err.Error())
	}

	byName := make(map[string]animation.Handle, len(sf.Nodes))
	for i, nd := range sf.Nodes {
		if nd.Name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", core.ErrUnsupportedInput, i)
		}
		byName[nd.Name] = animation.Handle(i)
	}
	lookup := func(what, n string) (animation.Handle, error) {
		h, ok := byName[n]
		if !ok {
			return animation.InvalidHandle, fmt.Errorf("%w: %s references unknown node '%s'", core.ErrLookupFailure, what, n)
		}
		return h, nil
	}

	nodes := make([]scene.Node, len(sf.Nodes))
	for i, nd := range sf.Nodes {
		n, err := buildNode(nd)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", nd.Name, err)
		}
		if nd.Parent != "" {
			if n.Parent, err = lookup(fmt.Sprintf("node '%s'", nd.Name), nd.Parent); err != nil {
				return nil, err
			}
		}
		nodes[i] = n
	}

	// the first mesh of a name wins, later ones are dropped
	meshes := make([]meshDesc, 0, len(sf.Meshes))
	meshNodes := make([]animation.Handle, 0, len(sf.Meshes))
	seen := make(map[string]bool, len(sf.Meshes))
	for _, md := range sf.Meshes {
		if seen[md.Name] {
			core.LogWarn("scene '%s': skipping duplicate mesh '%s'", name, md.Name)
			continue
		}
		seen[md.Name] = true
		h, err := lookup(fmt.Sprintf("mesh '%s'", md.Name), md.Node)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(nodes[h].Meshes, md.Name) {
			nodes[h].Meshes = append(nodes[h].Meshes, md.Name)
		}
		meshes = append(meshes, md)
		meshNodes = append(meshNodes, h)
	}
	for _, n := range nodes {
		for _, m := range n.Meshes {
			if !seen[m] {
				core.LogWarn("scene '%s': node '%s' draws undefined mesh '%s'", name, n.Name, m)
			}
		}
	}

	stacks := make([]scene.AnimationStack, len(sf.Animations))
	for i, ad := range sf.Animations {
		st := scene.AnimationStack{
			Name:   ad.Name,
			Start:  ad.Start,
			Stop:   ad.Stop,
			Curves: make(map[animation.Handle]*scene.NodeCurves, len(ad.Curves)),
		}
		if st.Stop < st.Start {
			return nil, fmt.Errorf("%w: animation '%s' stops at %f before starting at %f", core.ErrUnsupportedInput, ad.Name, ad.Stop, ad.Start)
		}
		for _, cd := range ad.Curves {
			h, err := lookup(fmt.Sprintf("animation '%s'", ad.Name), cd.Node)
			if err != nil {
				return nil, err
			}
			c := &scene.NodeCurves{}
			if c.Translation, err = buildKeys(cd.Translation); err != nil {
				return nil, fmt.Errorf("animation '%s' node '%s' translation: %w", ad.Name, cd.Node, err)
			}
			if c.Rotation, err = buildKeys(cd.Rotation); err != nil {
				return nil, fmt.Errorf("animation '%s' node '%s' rotation: %w", ad.Name, cd.Node, err)
			}
			if c.Scale, err = buildKeys(cd.Scale); err != nil {
				return nil, fmt.Errorf("animation '%s' node '%s' scale: %w", ad.Name, cd.Node, err)
			}
			st.Curves[h] = c
		}
		stacks[i] = st
	}

	sc, err := scene.New(nodes, stacks)
	if err != nil {
		return nil, err
	}

	for i, md := range meshes {
		imp, err := buildMesh(sc, md, meshNodes[i], lookup)
		if err != nil {
			return nil, fmt.Errorf("mesh '%s': %w", md.Name, err)
		}
		sc.AddMesh(imp)
	}

	core.LogDebug("scene '%s': %d nodes, %d meshes, %d animations", name, sc.NodeCount(), len(sc.Meshes()), sc.StackCount())
	return sc, nil
}

func buildNode(nd nodeDesc) (scene.Node, error) {
	n := scene.Node{
		Name:   nd.Name,
		Parent: animation.InvalidHandle,
		Hidden: nd.Hidden,
		Meshes: append([]string(nil), nd.Meshes...),
	}
	var err error
	if n.Local, err = buildTransform(nd.Translation, nd.Rotation, nd.Scale); err != nil {
		return n, err
	}
	if n.Geometric, err = buildTransform(nd.GeometricTranslation, nd.GeometricRotation, nd.GeometricScale); err != nil {
		return n, err
	}
	return n, nil
}

func buildTransform(t, r, s []float32) (math.Transform, error) {
	var out math.Transform
	var err error
	if out.Translation, err = vec3(t, math.NewVec3Zero()); err != nil {
		return out, err
	}
	if out.Rotation, err = vec3(r, math.NewVec3Zero()); err != nil {
		return out, err
	}
	if out.Scale, err = vec3(s, math.NewVec3One()); err != nil {
		return out, err
	}
	return out, nil
}

func buildKeys(kds []keyDesc) ([]scene.VectorKey, error) {
	if len(kds) == 0 {
		return nil, nil
	}
	keys := make([]scene.VectorKey, len(kds))
	for i, kd := range kds {
		if len(kd.Value) != 3 {
			return nil, fmt.Errorf("%w: key %d has %d components", core.ErrUnsupportedInput, i, len(kd.Value))
		}
		keys[i] = scene.VectorKey{Time: kd.Time, Value: math.NewVec3(kd.Value[0], kd.Value[1], kd.Value[2])}
	}
	return keys, nil
}

func buildMesh(sc *scene.Scene, md meshDesc, node animation.Handle, lookup func(what, n string) (animation.Handle, error)) (*resources.MeshImport, error) {
	controlPoints := make([]math.Vec3, len(md.ControlPoints))
	for i, cp := range md.ControlPoints {
		v, err := vec3(cp, math.NewVec3Zero())
		if err != nil || len(cp) == 0 {
			return nil, fmt.Errorf("%w: control point %d must have 3 components", core.ErrUnsupportedInput, i)
		}
		controlPoints[i] = v
	}
	var normals []math.Vec3
	if len(md.Normals) > 0 {
		normals = make([]math.Vec3, len(md.Normals))
		for i, n := range md.Normals {
			v, err := vec3(n, math.NewVec3Zero())
			if err != nil || len(n) == 0 {
				return nil, fmt.Errorf("%w: normal %d must have 3 components", core.ErrUnsupportedInput, i)
			}
			normals[i] = v
		}
	}
	var uvs []math.Vec2
	if len(md.UVs) > 0 {
		uvs = make([]math.Vec2, len(md.UVs))
		for i, uv := range md.UVs {
			if len(uv) != 2 {
				return nil, fmt.Errorf("%w: uv %d must have 2 components", core.ErrUnsupportedInput, i)
			}
			uvs[i] = math.NewVec2(uv[0], uv[1])
		}
	}

	ref, err := resources.ExpandControlPoints(md.Name, node, controlPoints, md.PolygonVertices, normals, uvs)
	if err != nil {
		return nil, err
	}

	meshRest, err := sc.RestGlobalTransform(node)
	if err != nil {
		return nil, err
	}
	imp := &resources.MeshImport{
		Mesh:            ref,
		PolygonVertices: append([]int32(nil), md.PolygonVertices...),
		Skins:           make([]resources.SkinDeformer, len(md.Skins)),
	}
	for si, sd := range md.Skins {
		clusters := make([]resources.Cluster, len(sd.Clusters))
		for ci, cd := range sd.Clusters {
			bone, err := lookup(fmt.Sprintf("cluster %d", ci), cd.Bone)
			if err != nil {
				return nil, err
			}
			mode, err := resources.ParseLinkMode(cd.LinkMode)
			if err != nil {
				return nil, fmt.Errorf("cluster %d: %w", ci, err)
			}
			boneRest, err := sc.RestGlobalTransform(bone)
			if err != nil {
				return nil, err
			}
			transform, err := mat4(cd.Transform, meshRest)
			if err != nil {
				return nil, fmt.Errorf("cluster %d transform: %w", ci, err)
			}
			transformLink, err := mat4(cd.TransformLink, boneRest)
			if err != nil {
				return nil, fmt.Errorf("cluster %d transform_link: %w", ci, err)
			}
			clusters[ci] = resources.Cluster{
				Bone:          bone,
				LinkMode:      mode,
				Indices:       cd.Indices,
				Weights:       cd.Weights,
				Transform:     transform,
				TransformLink: transformLink,
			}
		}
		imp.Skins[si] = resources.SkinDeformer{Clusters: clusters}
	}
	return imp, nil
}

func vec3(vals []float32, def math.Vec3) (math.Vec3, error) {
	switch len(vals) {
	case 0:
		return def, nil
	case 3:
		return math.NewVec3(vals[0], vals[1], vals[2]), nil
	}
	return def, fmt.Errorf("%w: expected 3 components, got %d", core.ErrUnsupportedInput, len(vals))
}

func mat4(vals []float32, def math.Mat4) (math.Mat4, error) {
	switch len(vals) {
	case 0:
		return def, nil
	case 16:
		var data [16]float32
		copy(data[:], vals)
		return math.NewMat4FromArray(data), nil
	}
	return def, fmt.Errorf("%w: expected 16 values, got %d", core.ErrUnsupportedInput, len(vals))
}
