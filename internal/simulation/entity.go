package simulation

import "github.com/mrassell/haxball-solo/internal/shared/geom"

// Kind is the closed set of body variants the simulation knows about.
type Kind int

const (
	KindPlayer Kind = iota
	KindBall
)

// Body is a circular entity integrated with semi-implicit Euler. Players and
// the ball share the same motion record; the behavioral delta (input-driven
// acceleration, freeze gating) is dispatched on Kind.
type Body struct {
	Kind Kind

	Pos geom.Vec2
	Vel geom.Vec2

	Radius      float64
	Mass        float64
	InvMass     float64 // zero means immovable
	Restitution float64
	MaxSpeed    float64
	Damping     float64 // per-tick velocity factor, (0,1]

	// Player only.
	IsHuman    bool
	Accel      float64   // acceleration constant, px/s^2 at full input
	InputAccel geom.Vec2 // written externally each tick, consumed on Update

	// Ball only.
	Frozen     bool
	FreezeLeft float64 // seconds
}

func newPlayerBody(t Tuning, pos geom.Vec2, human bool) *Body {
	return &Body{
		Kind:        KindPlayer,
		Pos:         pos,
		Radius:      t.PlayerRadius,
		Mass:        t.PlayerMass,
		InvMass:     1 / t.PlayerMass,
		Restitution: t.PlayerRestitution,
		MaxSpeed:    t.PlayerMaxSpeed,
		Damping:     t.PlayerDamping,
		IsHuman:     human,
		Accel:       t.PlayerAccel,
	}
}

func newBallBody(t Tuning, pos geom.Vec2) *Body {
	return &Body{
		Kind:        KindBall,
		Pos:         pos,
		Radius:      t.BallRadius,
		Mass:        t.BallMass,
		InvMass:     1 / t.BallMass,
		Restitution: t.BallRestitution,
		MaxSpeed:    t.BallMaxSpeed,
		Damping:     t.BallDamping,
	}
}

// Update advances the body by dt seconds. For players, accelMult scales the
// input acceleration and is the sole difficulty knob. A frozen ball decrements
// its timer and skips motion; if the timer expires within this tick it thaws
// and falls through to normal integration immediately.
func (b *Body) Update(dt, accelMult float64) {
	switch b.Kind {
	case KindBall:
		if b.Frozen {
			b.FreezeLeft -= dt
			if b.FreezeLeft > 0 {
				b.Vel = geom.Vec2{} // velocity is held at zero for the whole freeze
				return
			}
			b.Frozen = false
			b.FreezeLeft = 0
		}
	case KindPlayer:
		b.Vel = b.Vel.Add(b.InputAccel.Scale(b.Accel * accelMult * dt))
	}

	b.Vel = b.Vel.Scale(b.Damping)
	if speed := b.Vel.Len(); speed > b.MaxSpeed {
		b.Vel = b.Vel.Scale(b.MaxSpeed / speed)
	}
	b.Pos = b.Pos.Add(b.Vel.Scale(dt))
}

// Freeze suspends ball motion for the given duration and zeroes velocity.
func (b *Body) Freeze(duration float64) {
	b.Frozen = true
	b.FreezeLeft = duration
	b.Vel = geom.Vec2{}
}

// Speed returns the current velocity magnitude.
func (b *Body) Speed() float64 {
	return b.Vel.Len()
}
