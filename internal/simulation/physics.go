package simulation

import (
	"math"

	"github.com/mrassell/haxball-solo/internal/shared/geom"
)

// Contact describes an overlap between two circles or a circle and a wall.
type Contact struct {
	Normal      geom.Vec2 // unit, pointing from A toward B
	Penetration float64
}

// GoalOutcome reports which goal line, if any, the ball crossed this tick.
type GoalOutcome int

const (
	NoGoal GoalOutcome = iota
	GoalLeft  // ball entered the left net; the away side scores
	GoalRight // ball entered the right net; the home side scores
)

// DetectCircle reports the contact between two circular bodies, if they
// overlap. Coincident centers default to a (1,0) normal.
func DetectCircle(a, b *Body) (Contact, bool) {
	delta := b.Pos.Sub(a.Pos)
	radiusSum := a.Radius + b.Radius
	distSq := delta.LenSq()
	if distSq >= radiusSum*radiusSum {
		return Contact{}, false
	}

	dist := math.Sqrt(distSq)
	if dist < geom.NormalizeEpsilon {
		return Contact{Normal: geom.Vec2{X: 1}, Penetration: radiusSum}, true
	}
	return Contact{
		Normal:      delta.Scale(1 / dist),
		Penetration: radiusSum - dist,
	}, true
}

// ResolveCircle applies positional correction and an impulse along the contact
// normal. Correction only addresses penetration beyond the slop, and only by
// the correction percent, so stacked contacts settle without jitter.
func ResolveCircle(a, b *Body, c Contact) {
	invMassSum := a.InvMass + b.InvMass
	if invMassSum <= 0 {
		return
	}

	if c.Penetration > CollisionSlop {
		correction := c.Normal.Scale((c.Penetration - CollisionSlop) / invMassSum * CorrectionPercent)
		a.Pos = a.Pos.Sub(correction.Scale(a.InvMass))
		b.Pos = b.Pos.Add(correction.Scale(b.InvMass))
	}

	relVel := b.Vel.Sub(a.Vel)
	velAlongNormal := relVel.Dot(c.Normal)
	if velAlongNormal > 0 {
		return // already separating
	}

	e := math.Min(a.Restitution, b.Restitution)
	j := -(1 + e) * velAlongNormal / invMassSum
	impulse := c.Normal.Scale(j)
	a.Vel = a.Vel.Sub(impulse.Scale(a.InvMass))
	b.Vel = b.Vel.Add(impulse.Scale(b.InvMass))
}

// wallContact reports at most one wall contact per tick for the body.
// Left/right borders are evaluated before top/bottom; on corner overlap the
// later check overwrites the earlier normal. Players always collide with the
// left/right borders; the ball passes through them inside the goal mouth span.
func wallContact(b *Body, t Tuning) (Contact, bool) {
	var c Contact
	hit := false

	mouthTop, mouthBottom := t.goalMouthSpan()
	inMouth := b.Kind == KindBall && b.Pos.Y >= mouthTop && b.Pos.Y <= mouthBottom

	if !inMouth {
		if left := t.WallThickness - (b.Pos.X - b.Radius); left > 0 {
			c = Contact{Normal: geom.Vec2{X: 1}, Penetration: left}
			hit = true
		} else if right := (b.Pos.X + b.Radius) - (t.ArenaWidth - t.WallThickness); right > 0 {
			c = Contact{Normal: geom.Vec2{X: -1}, Penetration: right}
			hit = true
		}
	}

	if top := t.WallThickness - (b.Pos.Y - b.Radius); top > 0 {
		c = Contact{Normal: geom.Vec2{Y: 1}, Penetration: top}
		hit = true
	} else if bottom := (b.Pos.Y + b.Radius) - (t.ArenaHeight - t.WallThickness); bottom > 0 {
		c = Contact{Normal: geom.Vec2{Y: -1}, Penetration: bottom}
		hit = true
	}

	return c, hit
}

// ResolveWall corrects penetration fully against the single wall body and
// reflects velocity about the wall normal, scaled by the entity's own
// restitution, only if it is moving into the wall.
func ResolveWall(b *Body, t Tuning) {
	c, ok := wallContact(b, t)
	if !ok {
		return
	}

	if c.Penetration > CollisionSlop {
		b.Pos = b.Pos.Add(c.Normal.Scale((c.Penetration - CollisionSlop) * CorrectionPercent))
	}

	velIntoWall := b.Vel.Dot(c.Normal)
	if velIntoWall < 0 {
		b.Vel = b.Vel.Sub(c.Normal.Scale((1 + b.Restitution) * velIntoWall))
	}
}

// CheckGoal reports a goal when the ball is fully past a goal line while
// vertically inside the goal mouth span.
func CheckGoal(ball *Body, t Tuning) GoalOutcome {
	mouthTop, mouthBottom := t.goalMouthSpan()
	if ball.Pos.Y < mouthTop || ball.Pos.Y > mouthBottom {
		return NoGoal
	}
	if ball.Pos.X+ball.Radius < t.WallThickness {
		return GoalLeft
	}
	if ball.Pos.X-ball.Radius > t.ArenaWidth-t.WallThickness {
		return GoalRight
	}
	return NoGoal
}
