package scene

import (
	"github.com/spaghettifunk/anima-skinning/engine/animation"
	"github.com/spaghettifunk/anima-skinning/engine/core"
)

/**
 * @brief A looping clock over one animation stack of a scene. A scene without
 * stacks plays the rest pose at time 0.
 */
type Playback struct {
	scene *Scene
	stack animation.Stack
	start float64
	stop  float64
	time  float64
}

func NewPlayback(sc *Scene, stack animation.Stack) (*Playback, error) {
	p := &Playback{scene: sc, stack: animation.NoStack}
	if sc.StackCount() == 0 {
		core.LogDebug("scene has no animation stacks, playing the rest pose")
		return p, nil
	}
	if err := p.SetStack(stack); err != nil {
		return nil, err
	}
	return p, nil
}

// SetStack selects a stack and rewinds to its start.
func (p *Playback) SetStack(stack animation.Stack) error {
	st, err := p.scene.Stack(stack)
	if err != nil {
		return err
	}
	p.stack = stack
	p.start = st.Start
	p.stop = st.Stop
	p.time = st.Start
	core.LogInfo("animation '%s' selected, duration %.3f-%.3f", st.Name, st.Start, st.Stop)
	return nil
}

// NextStack cycles to the following stack, wrapping after the last one.
func (p *Playback) NextStack() error {
	count := p.scene.StackCount()
	if count == 0 {
		return nil
	}
	next := animation.Stack((int(p.stack) + 1) % count)
	return p.SetStack(next)
}

// Advance moves the clock by dt seconds, wrapping past the end of the stack,
// and returns the new time.
func (p *Playback) Advance(dt float64) float64 {
	if p.stack == animation.NoStack {
		return p.time
	}
	p.time += dt
	if p.time > p.stop {
		p.time = p.start + p.time - p.stop
	}
	return p.time
}

func (p *Playback) Time() float64 {
	return p.time
}

func (p *Playback) Stack() animation.Stack {
	return p.stack
}
