package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrassell/haxball-solo/internal/shared/geom"
)

const testDT = 1.0 / 60.0

// thawWorld clears the kickoff freeze so scenario tests can move the ball
// immediately.
func thawWorld(w *World) {
	w.mu.Lock()
	w.bodies[w.ballIdx].Frozen = false
	w.bodies[w.ballIdx].FreezeLeft = 0
	w.kickoffTimer = 0
	w.mu.Unlock()
}

func placeBody(w *World, idx int, pos, vel geom.Vec2) {
	w.mu.Lock()
	w.bodies[idx].Pos = pos
	w.bodies[idx].Vel = vel
	w.mu.Unlock()
}

func ballIndex(w *World) int { return w.ballIdx }

func TestParseMode(t *testing.T) {
	for _, s := range []string{"1v1", "2v2", "3v3"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(m))
	}
	_, err := ParseMode("4v4")
	assert.Error(t, err)
}

func TestNewWorldKickoffLayout(t *testing.T) {
	w := NewWorld("m-layout", Mode3v3, DefaultTuning())
	snap := w.Snapshot()

	require.Len(t, snap.Players, 6)
	assert.True(t, snap.Ball.Frozen, "kickoff starts with a frozen ball")
	assert.Equal(t, geom.Vec2{X: 450, Y: 270}, snap.Ball.Position)

	home := w.HomeRoster()
	away := w.AwayRoster()
	require.Len(t, home, 3)
	require.Len(t, away, 3)
	assert.True(t, w.bodies[home[0]].IsHuman, "home lead is the human seat")
	assert.Equal(t, geom.Vec2{X: 250, Y: 270}, w.bodies[home[0]].Pos)
	assert.Equal(t, geom.Vec2{X: 200, Y: 140}, w.bodies[home[1]].Pos)
	assert.Equal(t, geom.Vec2{X: 200, Y: 400}, w.bodies[home[2]].Pos)
	assert.Equal(t, geom.Vec2{X: 650, Y: 270}, w.bodies[away[0]].Pos)
}

func TestKickoffFreezeExpires(t *testing.T) {
	w := NewWorld("m-freeze", Mode1v1, DefaultTuning())

	for i := 0; i < 30; i++ { // half a second
		w.Update(testDT, 1.0)
	}
	assert.True(t, w.BallState().Frozen, "ball stays frozen through the kickoff window")
	assert.Equal(t, geom.Vec2{X: 450, Y: 270}, w.BallState().Position)

	for i := 0; i < 40; i++ { // past one second total
		w.Update(testDT, 1.0)
	}
	assert.False(t, w.BallState().Frozen)
}

func TestFrozenBallImmuneToCollisions(t *testing.T) {
	w := NewWorld("m-freeze-ram", Mode1v1, DefaultTuning())
	human := w.LeadHuman()

	// Sprint straight through the kickoff spot during the opening freeze.
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{X: 240})
	w.ApplyInput(human, geom.Vec2{X: 1})

	for i := 0; i < 30; i++ { // half a second, well inside the freeze window
		w.Update(testDT, 1.0)
	}

	ball := w.BallState()
	assert.True(t, ball.Frozen)
	assert.Equal(t, geom.Vec2{}, ball.Velocity, "ramming the frozen ball must not charge it")
	assert.Equal(t, geom.Vec2{X: 450, Y: 270}, ball.Position, "frozen ball holds the kickoff spot")
}

func TestGoalScoresAndResets(t *testing.T) {
	w := NewWorld("m-goal", Mode1v1, DefaultTuning())
	thawWorld(w)
	placeBody(w, ballIndex(w), geom.Vec2{X: -5, Y: 270}, geom.Vec2{})

	outcome := w.Update(testDT, 1.0)
	require.Equal(t, GoalLeft, outcome)

	score := w.Score()
	assert.Equal(t, 0, score.Home)
	assert.Equal(t, 1, score.Away, "ball in the left net credits the away side")

	snap := w.Snapshot()
	assert.Equal(t, geom.Vec2{X: 450, Y: 270}, snap.Ball.Position, "ball recentered")
	assert.True(t, snap.Ball.Frozen, "kickoff freeze re-armed")
	assert.Equal(t, geom.Vec2{}, snap.Ball.Velocity)

	home := w.HomeRoster()
	away := w.AwayRoster()
	assert.Equal(t, geom.Vec2{X: 250, Y: 270}, w.bodies[home[0]].Pos)
	assert.Equal(t, geom.Vec2{X: 650, Y: 270}, w.bodies[away[0]].Pos)

	var typesSeen []string
	for _, ev := range snap.Events {
		typesSeen = append(typesSeen, ev.Type)
	}
	assert.Contains(t, typesSeen, "goal")
	assert.Contains(t, typesSeen, "kickoff")
}

func TestGoalRightCreditsHome(t *testing.T) {
	tun := DefaultTuning()
	w := NewWorld("m-goal-right", Mode1v1, tun)
	thawWorld(w)
	placeBody(w, ballIndex(w), geom.Vec2{X: tun.ArenaWidth + 5, Y: 270}, geom.Vec2{})

	outcome := w.Update(testDT, 1.0)
	require.Equal(t, GoalRight, outcome)
	assert.Equal(t, 1, w.Score().Home)
	assert.Equal(t, 0, w.Score().Away)
}

func TestPauseFreezesSimulation(t *testing.T) {
	w := NewWorld("m-pause", Mode1v1, DefaultTuning())
	thawWorld(w)
	placeBody(w, ballIndex(w), geom.Vec2{X: 450, Y: 270}, geom.Vec2{X: 200})

	w.SetPaused(true)
	before := w.Snapshot()
	outcome := w.Update(testDT, 1.0)
	after := w.Snapshot()

	assert.Equal(t, NoGoal, outcome)
	assert.Equal(t, before.Tick, after.Tick, "paused ticks do not advance")
	assert.Equal(t, before.Ball.Position, after.Ball.Position)

	w.SetPaused(false)
	w.Update(testDT, 1.0)
	assert.Greater(t, w.BallState().Position.X, 450.0, "resume restores motion")
}

func TestUpdateRejectsDegenerateTimestep(t *testing.T) {
	w := NewWorld("m-dt", Mode1v1, DefaultTuning())
	before := w.Snapshot().Tick

	for _, dt := range []float64{math.NaN(), math.Inf(1), 0, -testDT} {
		assert.Equal(t, NoGoal, w.Update(dt, 1.0))
	}
	assert.Equal(t, before, w.Snapshot().Tick)
}

func TestApplyInputSanitizes(t *testing.T) {
	w := NewWorld("m-input", Mode1v1, DefaultTuning())
	human := w.LeadHuman()

	w.ApplyInput(human, geom.Vec2{X: 3, Y: 4})
	assert.InDelta(t, 0.6, w.bodies[human].InputAccel.X, 1e-12, "oversized input normalized")
	assert.InDelta(t, 0.8, w.bodies[human].InputAccel.Y, 1e-12)

	w.ApplyInput(human, geom.Vec2{X: 0.5})
	assert.Equal(t, geom.Vec2{X: 0.5}, w.bodies[human].InputAccel, "sub-unit input kept as is")

	w.ApplyInput(human, geom.Vec2{X: math.NaN()})
	assert.Equal(t, geom.Vec2{}, w.bodies[human].InputAccel, "non-finite input dropped")

	w.ApplyInput(ballIndex(w), geom.Vec2{X: 1})
	assert.Equal(t, geom.Vec2{}, w.bodies[ballIndex(w)].InputAccel, "ball never takes input")
}

func TestTryKickRequiresThawedBallInRange(t *testing.T) {
	w := NewWorld("m-kick", Mode1v1, DefaultTuning())
	human := w.LeadHuman()
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{})

	assert.False(t, w.TryKick(human), "frozen ball can never be kicked")

	thawWorld(w)
	assert.True(t, w.TryKick(human))
	assert.InDelta(t, DefaultTuning().KickForce, w.BallState().Velocity.Len(), 1e-9)
	assert.Greater(t, w.BallState().Velocity.X, 0.0, "idle home kicker shoots toward the right goal")

	placeBody(w, human, geom.Vec2{X: 100, Y: 100}, geom.Vec2{})
	assert.False(t, w.TryKick(human), "out of kick range")
}

func TestTryKickDirectionPriority(t *testing.T) {
	w := NewWorld("m-kickdir", Mode1v1, DefaultTuning())
	thawWorld(w)
	human := w.LeadHuman()
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{})

	// Held input wins over everything.
	w.ApplyInput(human, geom.Vec2{Y: 1})
	require.True(t, w.TryKick(human))
	assert.InDelta(t, 0, w.BallState().Velocity.X, 1e-9)
	assert.Greater(t, w.BallState().Velocity.Y, 0.0)

	// With no input, current velocity decides.
	placeBody(w, ballIndex(w), geom.Vec2{X: 450, Y: 270}, geom.Vec2{})
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{X: 0, Y: -120})
	w.ApplyInput(human, geom.Vec2{})
	require.True(t, w.TryKick(human))
	assert.Less(t, w.BallState().Velocity.Y, 0.0)
}

func TestTryKickRejectsNonFiniteState(t *testing.T) {
	w := NewWorld("m-kicknan", Mode1v1, DefaultTuning())
	thawWorld(w)
	human := w.LeadHuman()
	placeBody(w, human, geom.Vec2{X: math.NaN(), Y: 270}, geom.Vec2{})
	assert.False(t, w.TryKick(human))
}

func TestTryPassNeedsAReceiver(t *testing.T) {
	w := NewWorld("m-pass-solo", Mode1v1, DefaultTuning())
	thawWorld(w)
	human := w.LeadHuman()
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{})

	_, ok := w.TryPass(human)
	assert.False(t, ok, "no same-roster receiver exists in 1v1")
}

func TestTryPassGuards(t *testing.T) {
	w := NewWorld("m-pass-guard", Mode2v2, DefaultTuning())
	human := w.LeadHuman()
	placeBody(w, human, geom.Vec2{X: 430, Y: 270}, geom.Vec2{})

	_, ok := w.TryPass(human)
	assert.False(t, ok, "frozen ball blocks passes")

	thawWorld(w)
	placeBody(w, human, geom.Vec2{X: 100, Y: 100}, geom.Vec2{})
	_, ok = w.TryPass(human)
	assert.False(t, ok, "passer out of kick range")
}

func TestTryPassOutOfRangeReceiver(t *testing.T) {
	w := NewWorld("m-pass-range", Mode2v2, DefaultTuning())
	thawWorld(w)
	home := w.HomeRoster()
	winger := home[1]

	placeBody(w, ballIndex(w), geom.Vec2{X: 150, Y: 270}, geom.Vec2{})
	placeBody(w, winger, geom.Vec2{X: 130, Y: 270}, geom.Vec2{})
	placeBody(w, home[0], geom.Vec2{X: 850, Y: 270}, geom.Vec2{})

	_, ok := w.TryPass(winger)
	assert.False(t, ok, "receiver beyond max pass range")
}

func TestBotTeammateFeedsHuman(t *testing.T) {
	w := NewWorld("m-pass-human", Mode2v2, DefaultTuning())
	thawWorld(w)
	home := w.HomeRoster()
	winger := home[1]

	placeBody(w, ballIndex(w), geom.Vec2{X: 450, Y: 270}, geom.Vec2{})
	placeBody(w, winger, geom.Vec2{X: 430, Y: 270}, geom.Vec2{})
	placeBody(w, home[0], geom.Vec2{X: 600, Y: 270}, geom.Vec2{})

	recv, ok := w.TryPass(winger)
	require.True(t, ok)
	assert.Equal(t, home[0], recv, "open forward human is the preferred receiver")

	vel := w.BallState().Velocity
	assert.InDelta(t, DefaultTuning().KickForce*PassForceHuman, vel.Len(), 1e-9)
	assert.Greater(t, vel.X, 0.0)
}

func TestTryPassPicksForwardTeammate(t *testing.T) {
	w := NewWorld("m-pass-scan", Mode3v3, DefaultTuning())
	thawWorld(w)
	away := w.AwayRoster()
	lead := away[0]

	// Away attacks the left goal. One winger ahead, one behind.
	placeBody(w, ballIndex(w), geom.Vec2{X: 450, Y: 270}, geom.Vec2{})
	placeBody(w, lead, geom.Vec2{X: 470, Y: 270}, geom.Vec2{})
	placeBody(w, away[1], geom.Vec2{X: 300, Y: 140}, geom.Vec2{})
	placeBody(w, away[2], geom.Vec2{X: 700, Y: 400}, geom.Vec2{})

	recv, ok := w.TryPass(lead)
	require.True(t, ok)
	assert.Equal(t, away[1], recv, "forward teammate beats the one behind the passer")

	vel := w.BallState().Velocity
	assert.InDelta(t, DefaultTuning().KickForce*PassForceTeammate, vel.Len(), 1e-9)
	assert.Less(t, vel.X, 0.0, "pass travels toward the attacking side")
}

func TestResetClearsScoreAndLayout(t *testing.T) {
	w := NewWorld("m-reset", Mode2v2, DefaultTuning())
	thawWorld(w)
	w.mu.Lock()
	w.scoreHome = 3
	w.scoreAway = 2
	w.mu.Unlock()
	placeBody(w, w.LeadHuman(), geom.Vec2{X: 700, Y: 100}, geom.Vec2{X: 50})

	w.Reset()

	score := w.Score()
	assert.Zero(t, score.Home)
	assert.Zero(t, score.Away)
	assert.Equal(t, geom.Vec2{X: 250, Y: 270}, w.bodies[w.LeadHuman()].Pos)
	assert.Equal(t, geom.Vec2{}, w.bodies[w.LeadHuman()].Vel)
	assert.True(t, w.BallState().Frozen)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	w := NewWorld("m-snap", Mode1v1, DefaultTuning())
	snap := w.Snapshot()
	snap.Players[0].Position = geom.Vec2{X: -999}

	again := w.Snapshot()
	assert.NotEqual(t, geom.Vec2{X: -999}, again.Players[0].Position,
		"mutating a snapshot must not leak into the world")
}

func TestCollisionSeparatesOverlappingPlayers(t *testing.T) {
	w := NewWorld("m-collide", Mode1v1, DefaultTuning())
	thawWorld(w)
	home := w.LeadHuman()
	away := w.AwayRoster()[0]
	placeBody(w, home, geom.Vec2{X: 448, Y: 100}, geom.Vec2{X: 60})
	placeBody(w, away, geom.Vec2{X: 452, Y: 100}, geom.Vec2{X: -60})

	for i := 0; i < 30; i++ {
		w.Update(testDT, 1.0)
	}

	dist := w.bodies[home].Pos.Dist(w.bodies[away].Pos)
	minDist := w.bodies[home].Radius + w.bodies[away].Radius
	assert.GreaterOrEqual(t, dist, minDist-CollisionSlop-1e-6,
		"players settle at most slop-deep")
}
