package scene

import (
	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/containers"
)

// VisitFunc is called for every visible node. Returning an error stops the walk.
type VisitFunc func(h animation.Handle, n *Node) error

// Walk visits the visible nodes breadth first from the roots. Hidden nodes
// are not visited but their children are.
func (sc *Scene) Walk(visit VisitFunc) error {
	// every node is queued at most once, so the arena size bounds the queue
	queue := containers.NewRingQueue[animation.Handle](len(sc.nodes))
	for i := range sc.nodes {
		if !sc.nodes[i].Parent.Valid() {
			if err := queue.Enqueue(animation.Handle(i)); err != nil {
				return err
			}
		}
	}
	for !queue.IsEmpty() {
		h, err := queue.Dequeue()
		if err != nil {
			return err
		}
		n := &sc.nodes[h]
		if !n.Hidden {
			if err := visit(h, n); err != nil {
				return err
			}
		}
		for _, c := range n.Children() {
			if err := queue.Enqueue(c); err != nil {
				return err
			}
		}
	}
	return nil
}
