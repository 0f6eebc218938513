package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/mrassell/haxball-solo/internal/shared/geom"
)

const (
	// Control is a proximity heuristic, not a hard ownership flag.
	PossessionMargin = 20.0

	// Separation steering.
	SeparationRadius     = 100.0
	SeparationAllyWeight = 1.5
	SeparationBlend      = 0.4
	SeparationBlend3v3   = 0.5
	GoalBlendWeight      = 0.2
	GoalBlendRange       = 80.0

	// Ball prediction.
	BallPredictMinSpeed = 30.0
	BallPredictFactor   = 0.8
	BallPredictMaxTime  = 2.0
	BallPredictMargin   = 50.0

	// Behavior shaping.
	ChaseRange        = 160.0
	SupportAheadDX    = 120.0
	CreateSpaceOffset = 120.0
	ApproachOffset    = 30.0
	DefendStandoff    = 90.0
	AttackJitterY     = 40.0
	OpponentSlowSpeed = 120.0
	KickBallSpeedMax  = 200.0
)

// Engine produces per-tick steering and kick/pass decisions for every
// AI-controlled player. The random source is injected so tests can pin the
// otherwise-randomized kick and pass gates.
type Engine struct {
	rng        *rand.Rand
	difficulty float64 // 0..1
}

// NewEngine builds an engine at the given difficulty. A nil rng falls back to
// a time-seeded source.
func NewEngine(difficulty float64, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if difficulty < 0 {
		difficulty = 0
	}
	if difficulty > 1 {
		difficulty = 1
	}
	return &Engine{rng: rng, difficulty: difficulty}
}

// Difficulty returns the configured difficulty knob.
func (e *Engine) Difficulty() float64 {
	return e.difficulty
}

// BotAccelMultiplier maps difficulty onto the acceleration multiplier passed
// to World.Update for the bot roster.
func BotAccelMultiplier(difficulty float64) float64 {
	return 0.55 + 0.45*difficulty
}

// behaviorKey indexes the decision table. Role is the agent's roster slot;
// possession uses the kick-radius-plus-margin heuristic.
type behaviorKey struct {
	teammate bool
	mode     Mode
	hasBall  bool
	role     int
}

type behaviorFunc func(e *Engine, w *World, idx int) geom.Vec2

// behaviors maps every (relationship, mode, possession, role) combination to
// the target-selection function for that situation.
var behaviors = map[behaviorKey]behaviorFunc{}

func init() {
	for _, m := range []Mode{Mode1v1, Mode2v2} {
		for role := 0; role < 2; role++ {
			behaviors[behaviorKey{true, m, true, role}] = teammateControlTarget
			behaviors[behaviorKey{true, m, false, role}] = teammateSupportTarget
		}
	}
	for role := 1; role <= 2; role++ {
		behaviors[behaviorKey{true, Mode3v3, true, role}] = wingerControlTarget
		behaviors[behaviorKey{true, Mode3v3, false, role}] = wingerSupportTarget
	}

	behaviors[behaviorKey{false, Mode1v1, true, 0}] = opponentSoloControlTarget
	behaviors[behaviorKey{false, Mode1v1, false, 0}] = opponentSoloTarget
	for _, m := range []Mode{Mode2v2, Mode3v3} {
		behaviors[behaviorKey{false, m, false, 0}] = opponentLeadTarget
		for role := 0; role <= 2; role++ {
			behaviors[behaviorKey{false, m, true, role}] = opponentControlTarget
			if role > 0 {
				behaviors[behaviorKey{false, m, false, role}] = opponentWingerTarget
			}
		}
	}
}

// Steer returns the unit steering vector for the agent this tick. Any
// non-finite intermediate falls back to a safe default rather than steering
// the agent with invalid data.
func (e *Engine) Steer(w *World, idx int, teammate bool) geom.Vec2 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	agent := w.playerAt(idx)
	if agent == nil {
		return geom.Vec2{}
	}
	team, role, ok := w.rosterOf(idx)
	if !ok {
		return geom.Vec2{}
	}
	ball := w.bodies[w.ballIdx]
	hasBall := agent.Pos.Dist(ball.Pos) < w.tuning.KickRadius+PossessionMargin

	behavior, ok := behaviors[behaviorKey{teammate: teammate, mode: w.mode, hasBall: hasBall, role: role}]
	if !ok {
		behavior = chaseBallTarget
	}
	target := behavior(e, w, idx)
	if !target.IsFinite() {
		target = ball.Pos
	}

	raw := target.Sub(agent.Pos).Normalize()
	if raw == (geom.Vec2{}) || !raw.IsFinite() {
		raw = ball.Pos.Sub(agent.Pos).Normalize()
	}
	if raw == (geom.Vec2{}) || !raw.IsFinite() {
		return geom.Vec2{X: attackSign(team)}
	}

	dir := raw
	if sep := e.separation(w, idx); sep != (geom.Vec2{}) {
		blend := SeparationBlend
		if w.mode == Mode3v3 {
			blend = SeparationBlend3v3
		}
		dir = raw.Lerp(sep, blend).Normalize()
	}
	if teammate && agent.Pos.Dist(target) < GoalBlendRange {
		goalDir := attackGoal(w, team).Sub(agent.Pos).Normalize()
		if goalDir != (geom.Vec2{}) {
			dir = dir.Lerp(goalDir, GoalBlendWeight).Normalize()
		}
	}
	if dir == (geom.Vec2{}) || !dir.IsFinite() {
		dir = raw
	}
	return dir
}

// separation returns the weighted mean of unit away-vectors from every other
// player within SeparationRadius, same-roster neighbors weighted heavier.
func (e *Engine) separation(w *World, idx int) geom.Vec2 {
	agent := w.bodies[idx]
	team, _, _ := w.rosterOf(idx)

	var sum geom.Vec2
	var total float64
	for i, b := range w.bodies {
		if i == idx || b.Kind != KindPlayer {
			continue
		}
		if agent.Pos.Dist(b.Pos) >= SeparationRadius {
			continue
		}
		away := agent.Pos.Sub(b.Pos).Normalize()
		if away == (geom.Vec2{}) {
			continue
		}
		weight := 1.0
		if otherTeam, _, ok := w.rosterOf(i); ok && otherTeam == team {
			weight = SeparationAllyWeight
		}
		sum = sum.Add(away.Scale(weight))
		total += weight
	}
	if total == 0 {
		return geom.Vec2{}
	}
	return sum.Scale(1 / total)
}

// predictBall extrapolates the ball position by the agent's time-to-intercept,
// clamped to an inflated arena bound. A slow ball is taken where it is.
func (e *Engine) predictBall(w *World, idx int) geom.Vec2 {
	ball := w.bodies[w.ballIdx]
	speed := ball.Speed()
	if speed < BallPredictMinSpeed {
		return ball.Pos
	}
	agent := w.bodies[idx]
	t := agent.Pos.Dist(ball.Pos) / (speed * BallPredictFactor)
	if t > BallPredictMaxTime {
		t = BallPredictMaxTime
	}
	lo := geom.Vec2{X: -BallPredictMargin, Y: -BallPredictMargin}
	hi := geom.Vec2{X: w.tuning.ArenaWidth + BallPredictMargin, Y: w.tuning.ArenaHeight + BallPredictMargin}
	return ball.Pos.Add(ball.Vel.Scale(t)).Clamp(lo, hi)
}

// ShouldKick decides whether the agent triggers a kick/pass this tick. Every
// gate is an independent random draw from the injected source.
func (e *Engine) ShouldKick(w *World, idx int, teammate bool) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	agent := w.playerAt(idx)
	if agent == nil {
		return false
	}
	ball := w.bodies[w.ballIdx]
	if ball.Frozen {
		return false
	}
	if agent.Pos.Dist(ball.Pos) > w.tuning.KickRadius {
		return false
	}
	team, _, ok := w.rosterOf(idx)
	if !ok {
		return false
	}

	if teammate && w.mode != Mode1v1 {
		human := w.bodies[w.home[0]]
		d := agent.Pos.Dist(human.Pos)
		open := d >= PassRangeMin && d <= PassRangeMax
		forward := human.Pos.X > agent.Pos.X
		p := 0.65
		switch {
		case open && forward:
			p = 0.95
		case open:
			p = 0.80
		}
		return e.rng.Float64() < p
	}

	if !teammate && w.mode != Mode1v1 {
		attacking := (ball.Pos.X-w.tuning.ArenaWidth/2)*attackSign(team) > 0
		slow := agent.Speed() < OpponentSlowSpeed
		if attacking && slow {
			p := 0.60
			if (agent.Pos.X-w.tuning.ArenaWidth/2)*attackSign(team) > w.tuning.ArenaWidth/6 {
				p = 0.75
			}
			return e.rng.Float64() < p
		}
	}

	if (agent.Pos.X-w.tuning.ArenaWidth/2)*attackSign(team) < 0 {
		return false
	}
	if ball.Speed() > KickBallSpeedMax {
		return false
	}
	return e.rng.Float64() < e.difficulty*0.7+0.3
}

// --- behavior targets ---

func chaseBallTarget(e *Engine, w *World, idx int) geom.Vec2 {
	return e.predictBall(w, idx)
}

// teammateControlTarget handles a 1v1/2v2 teammate in possession: keep the
// passing lane to the human alive by advancing, otherwise create space away
// from the nearest opponent.
func teammateControlTarget(e *Engine, w *World, idx int) geom.Vec2 {
	agent := w.bodies[idx]
	human := w.bodies[w.home[0]]
	d := agent.Pos.Dist(human.Pos)
	if d >= PassRangeMin && d <= PassRangeMax {
		return attackGoal(w, TeamHome)
	}

	if opp := nearestOpponent(w, idx); opp != nil {
		away := agent.Pos.Sub(opp.Pos).Normalize()
		if away != (geom.Vec2{}) {
			return agent.Pos.Add(away.Scale(CreateSpaceOffset)).Add(geom.Vec2{X: 80})
		}
	}
	return attackGoal(w, TeamHome)
}

// teammateSupportTarget holds a role-spaced position on the opposite flank of
// the ball.
func teammateSupportTarget(e *Engine, w *World, idx int) geom.Vec2 {
	ball := w.bodies[w.ballIdx]
	_, role, _ := w.rosterOf(idx)

	side := 1.0
	if ball.Pos.Y > w.tuning.ArenaHeight/2 {
		side = -1
	}
	return ball.Pos.Add(geom.Vec2{X: -60, Y: side * (70 + 40*float64(role))})
}

// wingerControlTarget handles a 3v3 winger in possession: hold course toward
// goal while the human is open (the pass gate fires separately), advance when
// there is field left, otherwise drop back into the lane.
func wingerControlTarget(e *Engine, w *World, idx int) geom.Vec2 {
	agent := w.bodies[idx]
	human := w.bodies[w.home[0]]
	_, role, _ := w.rosterOf(idx)

	d := agent.Pos.Dist(human.Pos)
	if d >= PassRangeMin && d <= PassRangeMax && human.Pos.X > agent.Pos.X {
		return attackGoal(w, TeamHome)
	}
	if agent.Pos.X < w.tuning.ArenaWidth-150 {
		return attackGoal(w, TeamHome)
	}
	return geom.Vec2{X: agent.Pos.X - 60, Y: wingerLane(w, role)}
}

// wingerSupportTarget covers the 3v3 teammate priorities outside possession:
// lane support while the human has the ball, direct chase when the agent is
// the closer chaser, otherwise lane positioning keyed on the ball's half.
func wingerSupportTarget(e *Engine, w *World, idx int) geom.Vec2 {
	agent := w.bodies[idx]
	ball := w.bodies[w.ballIdx]
	human := w.bodies[w.home[0]]
	_, role, _ := w.rosterOf(idx)
	lane := wingerLane(w, role)

	if human.Pos.Dist(ball.Pos) < w.tuning.KickRadius+PossessionMargin {
		x := math.Min(human.Pos.X+SupportAheadDX, w.tuning.ArenaWidth-80)
		return geom.Vec2{X: x, Y: lane}
	}

	agentDist := agent.Pos.Dist(ball.Pos)
	if agentDist < ChaseRange && agentDist <= human.Pos.Dist(ball.Pos) {
		return e.predictBall(w, idx)
	}

	if ball.Pos.X < w.tuning.ArenaWidth/2 {
		return geom.Vec2{X: ball.Pos.X/2 + 90, Y: lane}
	}
	return geom.Vec2{X: ball.Pos.X + 80, Y: lane}
}

// opponentControlTarget advances toward the human goal; pass selection runs
// through the kick gate and TryPass.
func opponentControlTarget(e *Engine, w *World, idx int) geom.Vec2 {
	return attackGoal(w, TeamAway)
}

// opponentLeadTarget chases the predicted ball unless a roster mate is the
// closer chaser, in which case it supports in front of its own net.
func opponentLeadTarget(e *Engine, w *World, idx int) geom.Vec2 {
	agent := w.bodies[idx]
	ball := w.bodies[w.ballIdx]

	agentDist := agent.Pos.Dist(ball.Pos)
	for _, i := range w.away {
		if i == idx {
			continue
		}
		if w.bodies[i].Pos.Dist(ball.Pos) < agentDist {
			return ball.Pos.Lerp(defendGoal(w, TeamAway), 0.5)
		}
	}
	return e.predictBall(w, idx)
}

// opponentWingerTarget holds a lateral defender offset on the goal side of
// the ball.
func opponentWingerTarget(e *Engine, w *World, idx int) geom.Vec2 {
	ball := w.bodies[w.ballIdx]
	_, role, _ := w.rosterOf(idx)
	x := math.Min(ball.Pos.X+100, w.tuning.ArenaWidth-60)
	return geom.Vec2{X: x, Y: wingerLane(w, role)}
}

// opponentSoloControlTarget aims at the human goal with small random lateral
// jitter.
func opponentSoloControlTarget(e *Engine, w *World, idx int) geom.Vec2 {
	goal := attackGoal(w, TeamAway)
	jitter := (e.rng.Float64()*2 - 1) * AttackJitterY
	return geom.Vec2{X: goal.X, Y: goal.Y + jitter}
}

// opponentSoloTarget is the 1v1 attack/defend split, keyed on which half the
// ball occupies and its distance to each goal. Attacking approaches the ball
// from the goal side; defending intercepts a ball moving toward the defended
// net, clamped to a standoff in front of it.
func opponentSoloTarget(e *Engine, w *World, idx int) geom.Vec2 {
	ball := w.bodies[w.ballIdx]
	ownGoal := defendGoal(w, TeamAway)
	humanGoal := attackGoal(w, TeamAway)

	ballInAttackHalf := ball.Pos.X < w.tuning.ArenaWidth/2
	if ballInAttackHalf && ball.Pos.Dist(humanGoal) < ball.Pos.Dist(ownGoal) {
		approach := ball.Pos.Sub(humanGoal).Normalize()
		if approach == (geom.Vec2{}) {
			approach = geom.Vec2{X: 1}
		}
		return ball.Pos.Add(approach.Scale(ApproachOffset))
	}

	if ball.Vel.Dot(ownGoal.Sub(ball.Pos)) > 0 && ball.Speed() > BallPredictMinSpeed {
		intercept := e.predictBall(w, idx)
		if limit := ownGoal.X - DefendStandoff; intercept.X > limit {
			intercept.X = limit
		}
		return intercept
	}
	return ball.Pos
}

// --- helpers ---

// wingerLane maps roster slot to a fixed horizontal lane: slot 1 top, slot 2
// bottom, lead on the midline.
func wingerLane(w *World, role int) float64 {
	cy := w.tuning.ArenaHeight / 2
	switch role {
	case 1:
		return cy - 130
	case 2:
		return cy + 130
	}
	return cy
}

// attackGoal returns the center of the goal the team shoots at.
func attackGoal(w *World, team string) geom.Vec2 {
	cy := w.tuning.ArenaHeight / 2
	if team == TeamAway {
		return geom.Vec2{X: 0, Y: cy}
	}
	return geom.Vec2{X: w.tuning.ArenaWidth, Y: cy}
}

// defendGoal returns the center of the goal the team defends.
func defendGoal(w *World, team string) geom.Vec2 {
	if team == TeamAway {
		return attackGoal(w, TeamHome)
	}
	return attackGoal(w, TeamAway)
}

// nearestOpponent returns the closest opposite-roster player, nil if none.
func nearestOpponent(w *World, idx int) *Body {
	team, _, ok := w.rosterOf(idx)
	if !ok {
		return nil
	}
	opponents := w.away
	if team == TeamAway {
		opponents = w.home
	}

	agent := w.bodies[idx]
	var best *Body
	bestDist := math.MaxFloat64
	for _, i := range opponents {
		b := w.bodies[i]
		if d := agent.Pos.Dist(b.Pos); d < bestDist {
			bestDist = d
			best = b
		}
	}
	return best
}
