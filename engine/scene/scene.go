// Package scene holds an imported node hierarchy with its animation stacks and
// answers pose queries for the skinning systems.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
	"github.com/spaghettifunk/anima-skinning/engine/math"
	"github.com/spaghettifunk/anima-skinning/engine/resources"
)

/**
 * @brief One node of the hierarchy. Parent is an index into the same arena,
 * animation.InvalidHandle for roots.
 */
type Node struct {
	Name   string
	Parent animation.Handle
	// Hidden nodes are not drawn. Their children still are.
	Hidden bool
	/** @brief The rest (unanimated) local transform. */
	Local math.Transform
	/** @brief Applied to this node's geometry only, never inherited. */
	Geometric math.Transform
	/** @brief Names of the meshes attached to this node. */
	Meshes []string

	children []animation.Handle
}

/** @brief A keyframe of a vector channel. */
type VectorKey struct {
	Time  float64
	Value math.Vec3
}

/**
 * @brief Keyframes of one node. Empty channels fall back to the rest
 * transform. Rotation values are Euler XYZ degrees.
 */
type NodeCurves struct {
	Translation []VectorKey
	Rotation    []VectorKey
	Scale       []VectorKey
}

/** @brief A named animation with its playback range in seconds. */
type AnimationStack struct {
	Name   string
	Start  float64
	Stop   float64
	Curves map[animation.Handle]*NodeCurves
}

type poseKey struct {
	stack animation.Stack
	time  float64
}

type Scene struct {
	nodes  []Node
	byName map[string]animation.Handle
	stacks []AnimationStack
	meshes []*resources.MeshImport

	// memo of global transforms for the last (stack, time) queried
	mu       sync.Mutex
	memoKey  poseKey
	memo     []math.Mat4
	memoDone []bool
}

var _ animation.PoseEvaluator = (*Scene)(nil)

// New validates the hierarchy and the animation stacks and builds a scene.
func New(nodes []Node, stacks []AnimationStack) (*Scene, error) {
	sc := &Scene{
		nodes:    make([]Node, len(nodes)),
		byName:   make(map[string]animation.Handle, len(nodes)),
		stacks:   stacks,
		memo:     make([]math.Mat4, len(nodes)),
		memoDone: make([]bool, len(nodes)),
		memoKey:  poseKey{stack: animation.NoStack, time: -1},
	}
	copy(sc.nodes, nodes)

	for i := range sc.nodes {
		n := &sc.nodes[i]
		n.children = nil
		// the zero Transform would scale everything to a point
		if n.Local == (math.Transform{}) {
			n.Local = math.TransformIdentity()
		}
		if n.Geometric == (math.Transform{}) {
			n.Geometric = math.TransformIdentity()
		}
		if n.Name != "" {
			if _, exists := sc.byName[n.Name]; exists {
				return nil, fmt.Errorf("%w: duplicate node name '%s'", core.ErrUnsupportedInput, n.Name)
			}
			sc.byName[n.Name] = animation.Handle(i)
		}
		if n.Parent.Valid() && int(n.Parent) >= len(sc.nodes) {
			return nil, fmt.Errorf("%w: node '%s' has parent %d of %d nodes", core.ErrLookupFailure, n.Name, n.Parent, len(sc.nodes))
		}
		if !n.Parent.Valid() {
			n.Parent = animation.InvalidHandle
		}
	}
	// 0 unvisited, 1 on the current parent chain, 2 known to reach a root
	state := make([]uint8, len(sc.nodes))
	chain := make([]animation.Handle, 0, 16)
	for i := range sc.nodes {
		chain = chain[:0]
		for h := animation.Handle(i); h.Valid() && state[h] != 2; h = sc.nodes[h].Parent {
			if state[h] == 1 {
				return nil, fmt.Errorf("%w: parent cycle through node '%s'", core.ErrUnsupportedInput, sc.nodes[h].Name)
			}
			state[h] = 1
			chain = append(chain, h)
		}
		for _, h := range chain {
			state[h] = 2
		}
		if p := sc.nodes[i].Parent; p.Valid() {
			sc.nodes[p].children = append(sc.nodes[p].children, animation.Handle(i))
		}
	}

	for si := range sc.stacks {
		st := &sc.stacks[si]
		for h, c := range st.Curves {
			if !sc.valid(h) {
				return nil, fmt.Errorf("%w: animation '%s' animates unknown node %d", core.ErrLookupFailure, st.Name, h)
			}
			for _, keys := range [][]VectorKey{c.Translation, c.Rotation, c.Scale} {
				if !sort.SliceIsSorted(keys, func(a, b int) bool { return keys[a].Time < keys[b].Time }) {
					return nil, fmt.Errorf("%w: animation '%s' has unsorted keys on node '%s'", core.ErrUnsupportedInput, st.Name, sc.nodes[h].Name)
				}
			}
		}
	}
	return sc, nil
}

func (sc *Scene) valid(h animation.Handle) bool {
	return h.Valid() && int(h) < len(sc.nodes)
}

func (sc *Scene) NodeCount() int {
	return len(sc.nodes)
}

// Node returns the node at h.
func (sc *Scene) Node(h animation.Handle) (*Node, error) {
	if !sc.valid(h) {
		return nil, fmt.Errorf("%w: node %d of %d", core.ErrLookupFailure, h, len(sc.nodes))
	}
	return &sc.nodes[h], nil
}

// Lookup resolves a node by name.
func (sc *Scene) Lookup(name string) (animation.Handle, error) {
	h, ok := sc.byName[name]
	if !ok {
		return animation.InvalidHandle, fmt.Errorf("%w: no node named '%s'", core.ErrLookupFailure, name)
	}
	return h, nil
}

func (n *Node) Children() []animation.Handle {
	return n.children
}

func (sc *Scene) StackCount() int {
	return len(sc.stacks)
}

// Stack returns the animation stack at index s.
func (sc *Scene) Stack(s animation.Stack) (*AnimationStack, error) {
	if s < 0 || int(s) >= len(sc.stacks) {
		return nil, fmt.Errorf("%w: animation stack %d of %d", core.ErrLookupFailure, s, len(sc.stacks))
	}
	return &sc.stacks[s], nil
}

// AddMesh attaches an imported mesh to the scene.
func (sc *Scene) AddMesh(imp *resources.MeshImport) {
	sc.meshes = append(sc.meshes, imp)
}

// Meshes returns the imported meshes in import order.
func (sc *Scene) Meshes() []*resources.MeshImport {
	return sc.meshes
}

// GeometricOffset implements animation.PoseEvaluator.
func (sc *Scene) GeometricOffset(h animation.Handle) (math.Mat4, error) {
	if !sc.valid(h) {
		return math.Mat4{}, fmt.Errorf("%w: node %d of %d", core.ErrLookupFailure, h, len(sc.nodes))
	}
	return sc.nodes[h].Geometric.Matrix(), nil
}

// RestGlobalTransform returns the global transform of h with no animation applied.
func (sc *Scene) RestGlobalTransform(h animation.Handle) (math.Mat4, error) {
	return sc.GlobalTransform(h, animation.NoStack, 0)
}

// GlobalTransform implements animation.PoseEvaluator. It is safe for concurrent use.
func (sc *Scene) GlobalTransform(h animation.Handle, stack animation.Stack, time float64) (math.Mat4, error) {
	if !sc.valid(h) {
		return math.Mat4{}, fmt.Errorf("%w: node %d of %d", core.ErrLookupFailure, h, len(sc.nodes))
	}
	var st *AnimationStack
	if stack != animation.NoStack {
		s, err := sc.Stack(stack)
		if err != nil {
			return math.Mat4{}, err
		}
		st = s
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := poseKey{stack: stack, time: time}
	if key != sc.memoKey {
		for i := range sc.memoDone {
			sc.memoDone[i] = false
		}
		sc.memoKey = key
	}
	if sc.memoDone[h] {
		return sc.memo[h], nil
	}

	// collect every ancestor not yet evaluated, then compose from the top down
	pending := []animation.Handle{h}
	for p := sc.nodes[h].Parent; p.Valid() && !sc.memoDone[p]; p = sc.nodes[p].Parent {
		pending = append(pending, p)
	}
	for i := len(pending) - 1; i >= 0; i-- {
		n := pending[i]
		local := sc.localTransform(n, st, time).Matrix()
		if p := sc.nodes[n].Parent; p.Valid() {
			local = local.Mul(sc.memo[p])
		}
		sc.memo[n] = local
		sc.memoDone[n] = true
	}
	return sc.memo[h], nil
}

func (sc *Scene) localTransform(h animation.Handle, st *AnimationStack, time float64) math.Transform {
	local := sc.nodes[h].Local
	if st == nil {
		return local
	}
	c, ok := st.Curves[h]
	if !ok || c == nil {
		return local
	}
	local.Translation = sampleKeys(c.Translation, time, local.Translation)
	local.Rotation = sampleKeys(c.Rotation, time, local.Rotation)
	local.Scale = sampleKeys(c.Scale, time, local.Scale)
	return local
}

// sampleKeys linearly interpolates a channel, holding the first and last keys
// outside their range.
func sampleKeys(keys []VectorKey, time float64, rest math.Vec3) math.Vec3 {
	switch len(keys) {
	case 0:
		return rest
	case 1:
		return keys[0].Value
	}
	t := math.Clamp(time, keys[0].Time, keys[len(keys)-1].Time)
	next := sort.Search(len(keys), func(i int) bool { return keys[i].Time >= t })
	if next == 0 {
		return keys[0].Value
	}
	k0, k1 := keys[next-1], keys[next]
	span := k1.Time - k0.Time
	if span <= 0 {
		return k1.Value
	}
	f := math.Clamp((t-k0.Time)/span, 0, 1)
	return k0.Value.Lerp(k1.Value, float32(f))
}
