package simulation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mrassell/haxball-solo/internal/shared/geom"
	"github.com/mrassell/haxball-solo/internal/shared/types"
)

const (
	TeamHome = "home"
	TeamAway = "away"

	// Kick direction priority thresholds.
	InputDirEpsilon  = 0.1
	KickVelThreshold = 5.0

	// Pass selection. Receivers must sit inside the open range; teammates
	// behind the passer relative to the attacking direction are heavily
	// penalized, forward-positioned ones get a dot-product bonus.
	PassRangeMin      = 30.0
	PassRangeMax      = 500.0
	PassBehindPenalty = 1000.0
	PassAheadWeight   = 100.0

	// Lead bias projects the receiver's motion ahead of them.
	LeadBiasHuman     = 0.45
	LeadCapHuman      = 85.0
	LeadBiasTeammate  = 0.35
	LeadCapTeammate   = 70.0
	PassForceHuman    = 0.92
	PassForceTeammate = 0.90
)

// Mode selects roster sizes per side.
type Mode string

const (
	Mode1v1 Mode = "1v1"
	Mode2v2 Mode = "2v2"
	Mode3v3 Mode = "3v3"
)

// TeamSize returns players per side for the mode.
func (m Mode) TeamSize() int {
	switch m {
	case Mode2v2:
		return 2
	case Mode3v3:
		return 3
	default:
		return 1
	}
}

// ParseMode validates a playlist/config mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Mode1v1, Mode2v2, Mode3v3:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// World is the authoritative simulation state for one match. It owns every
// entity; rosters are ordered index lists into the entity slice (slot 0 is
// the lead, subsequent slots are wingers).
type World struct {
	mu        sync.RWMutex
	matchID   string
	mode      Mode
	tuning    Tuning
	createdAt time.Time

	bodies  []*Body
	home    []int // human-controlled side, defends the left goal
	away    []int // bot-controlled side, defends the right goal
	ballIdx int

	scoreHome    int
	scoreAway    int
	kickoffTimer float64
	paused       bool
	tick         uint64
	events       []types.GameplayEvent
}

// NewWorld creates a world with every entity at its kickoff position and the
// ball frozen for the opening kickoff. Entities are created once and only
// repositioned afterwards.
func NewWorld(matchID string, mode Mode, t Tuning) *World {
	w := &World{
		matchID:   matchID,
		mode:      mode,
		tuning:    t,
		createdAt: time.Now().UTC(),
	}

	homeSpawns, awaySpawns := kickoffLayout(mode, t)
	for i, pos := range homeSpawns {
		w.home = append(w.home, len(w.bodies))
		w.bodies = append(w.bodies, newPlayerBody(t, pos, i == 0))
	}
	for _, pos := range awaySpawns {
		w.away = append(w.away, len(w.bodies))
		w.bodies = append(w.bodies, newPlayerBody(t, pos, false))
	}

	w.ballIdx = len(w.bodies)
	ball := newBallBody(t, geom.Vec2{X: t.ArenaWidth / 2, Y: t.ArenaHeight / 2})
	w.bodies = append(w.bodies, ball)

	ball.Freeze(KickoffFreezeTime)
	w.kickoffTimer = KickoffFreezeTime
	w.events = append(w.events, types.GameplayEvent{
		Type:       "kickoff",
		OccurredMS: time.Now().UTC().UnixMilli(),
	})
	return w
}

// kickoffLayout returns the fixed spawn position per roster slot. Slot 0 is
// the lead on the horizontal midline; slots 1 and 2 take the top and bottom
// lanes respectively.
func kickoffLayout(mode Mode, t Tuning) (home, away []geom.Vec2) {
	cx := t.ArenaWidth / 2
	cy := t.ArenaHeight / 2
	const (
		leadDX = 200.0
		wingDX = 250.0
		wingDY = 130.0
	)

	home = []geom.Vec2{{X: cx - leadDX, Y: cy}}
	away = []geom.Vec2{{X: cx + leadDX, Y: cy}}
	if mode == Mode2v2 || mode == Mode3v3 {
		home = append(home, geom.Vec2{X: cx - wingDX, Y: cy - wingDY})
		away = append(away, geom.Vec2{X: cx + wingDX, Y: cy - wingDY})
	}
	if mode == Mode3v3 {
		home = append(home, geom.Vec2{X: cx - wingDX, Y: cy + wingDY})
		away = append(away, geom.Vec2{X: cx + wingDX, Y: cy + wingDY})
	}
	return home, away
}

// Update advances the world by dt seconds. Bot-rostered players integrate
// with botAccelMult; the human roster always runs at 1.0. Returns the goal
// outcome for this tick, NoGoal while paused or on a degenerate timestep.
func (w *World) Update(dt, botAccelMult float64) GoalOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return NoGoal
	}
	if w.paused {
		return NoGoal
	}

	w.tick++
	w.events = w.events[:0]

	if w.kickoffTimer > 0 {
		w.kickoffTimer -= dt
		if w.kickoffTimer < 0 {
			w.kickoffTimer = 0
		}
	}

	for _, i := range w.home {
		w.bodies[i].Update(dt, 1.0)
	}
	for _, i := range w.away {
		w.bodies[i].Update(dt, botAccelMult)
	}
	ball := w.bodies[w.ballIdx]
	ball.Update(dt, 1.0)

	if outcome := CheckGoal(ball, w.tuning); outcome != NoGoal {
		scoringTeam := TeamAway
		if outcome == GoalRight {
			scoringTeam = TeamHome
			w.scoreHome++
		} else {
			w.scoreAway++
		}
		w.appendEvent("goal", scoringTeam, 0)
		w.resetKickoffLocked()
		return outcome
	}

	// A frozen ball is immovable: no impulses, no positional correction.
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			if w.bodies[i].Frozen || w.bodies[j].Frozen {
				continue
			}
			if c, ok := DetectCircle(w.bodies[i], w.bodies[j]); ok {
				ResolveCircle(w.bodies[i], w.bodies[j], c)
			}
		}
	}
	for _, b := range w.bodies {
		if b.Frozen {
			continue
		}
		ResolveWall(b, w.tuning)
	}
	return NoGoal
}

// ApplyInput writes the steering acceleration for a player slot. Non-finite
// input is dropped; directions longer than unit are normalized.
func (w *World) ApplyInput(idx int, accel geom.Vec2) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.playerAt(idx)
	if p == nil {
		return
	}
	if !accel.IsFinite() {
		p.InputAccel = geom.Vec2{}
		return
	}
	if accel.Len() > 1 {
		accel = accel.Normalize()
	}
	p.InputAccel = accel
}

// TryKick shoots the ball at full kick force from the given player. It fails
// while the ball is frozen, out of kick range, or on non-finite state. Kick
// direction priority: current input, then own velocity, then straight at the
// opposing goal.
func (w *World) TryKick(idx int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.playerAt(idx)
	if p == nil {
		return false
	}
	ball := w.bodies[w.ballIdx]
	if ball.Frozen {
		return false
	}
	if !p.Pos.IsFinite() || !p.Vel.IsFinite() || !ball.Pos.IsFinite() {
		return false
	}
	if p.Pos.Dist(ball.Pos) > w.tuning.KickRadius {
		return false
	}

	team, slot, ok := w.rosterOf(idx)
	if !ok {
		return false
	}

	dir := p.InputAccel
	if dir.Len() < InputDirEpsilon {
		if p.Speed() > KickVelThreshold {
			dir = p.Vel
		} else {
			dir = geom.Vec2{X: attackSign(team)}
		}
	}
	dir = dir.Normalize()
	if dir == (geom.Vec2{}) {
		dir = geom.Vec2{X: attackSign(team)}
	}

	ball.Vel = dir.Scale(w.tuning.KickForce)
	w.appendEvent("kick", team, slot)
	return true
}

// TryPass plays a lead-biased pass to the best open same-roster receiver.
// Bot teammates prefer feeding the lead human when they are open and forward.
// Returns the receiver's entity index, or false when no receiver qualifies.
func (w *World) TryPass(idx int) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.playerAt(idx)
	if p == nil {
		return -1, false
	}
	ball := w.bodies[w.ballIdx]
	if ball.Frozen {
		return -1, false
	}
	if !p.Pos.IsFinite() || !p.Vel.IsFinite() || !ball.Pos.IsFinite() {
		return -1, false
	}
	if p.Pos.Dist(ball.Pos) > w.tuning.KickRadius {
		return -1, false
	}

	team, slot, ok := w.rosterOf(idx)
	if !ok {
		return -1, false
	}
	sign := attackSign(team)
	roster := w.home
	if team == TeamAway {
		roster = w.away
	}

	if team == TeamHome && idx != w.home[0] {
		recvIdx := w.home[0]
		recv := w.bodies[recvIdx]
		d := p.Pos.Dist(recv.Pos)
		ahead := (recv.Pos.X-p.Pos.X)*sign > 0
		attackingHalf := (recv.Pos.X-w.tuning.ArenaWidth/2)*sign > 0
		if recv.Pos.IsFinite() && d >= PassRangeMin && d <= PassRangeMax && (ahead || attackingHalf) {
			target := w.leadTarget(p, recv, LeadBiasHuman, LeadCapHuman)
			if w.launchPass(ball, p, target, PassForceHuman) {
				w.appendEvent("pass", team, slot)
				return recvIdx, true
			}
		}
	}

	best := -1
	bestScore := math.MaxFloat64
	for _, j := range roster {
		if j == idx {
			continue
		}
		mate := w.bodies[j]
		if !mate.Pos.IsFinite() {
			continue
		}
		d := p.Pos.Dist(mate.Pos)
		if d <= PassRangeMin || d >= PassRangeMax {
			continue
		}
		score := d
		fromBall := mate.Pos.Sub(ball.Pos).Normalize()
		fromPasser := mate.Pos.Sub(p.Pos).Normalize()
		score -= fromBall.Dot(fromPasser) * PassAheadWeight
		if (mate.Pos.X-p.Pos.X)*sign < 0 {
			score += PassBehindPenalty
		}
		if score < bestScore {
			bestScore = score
			best = j
		}
	}
	if best < 0 {
		return -1, false
	}

	recv := w.bodies[best]
	target := w.leadTarget(p, recv, LeadBiasTeammate, LeadCapTeammate)
	if !w.launchPass(ball, p, target, PassForceTeammate) {
		return -1, false
	}
	w.appendEvent("pass", team, slot)
	return best, true
}

// leadTarget projects the receiver's position along their motion, capped, and
// clamps it inside the field. Near-stationary receivers are led along the
// passer-to-receiver line instead.
func (w *World) leadTarget(passer, recv *Body, bias, lead float64) geom.Vec2 {
	dir := recv.Vel.Normalize()
	if dir == (geom.Vec2{}) {
		dir = recv.Pos.Sub(passer.Pos).Normalize()
	}
	dist := math.Min(recv.Speed()*bias, lead)
	target := recv.Pos.Add(dir.Scale(dist))

	lo := geom.Vec2{X: w.tuning.WallThickness, Y: w.tuning.WallThickness}
	hi := geom.Vec2{X: w.tuning.ArenaWidth - w.tuning.WallThickness, Y: w.tuning.ArenaHeight - w.tuning.WallThickness}
	return target.Clamp(lo, hi)
}

func (w *World) launchPass(ball, passer *Body, target geom.Vec2, forceFrac float64) bool {
	dir := target.Sub(ball.Pos).Normalize()
	if dir == (geom.Vec2{}) {
		dir = target.Sub(passer.Pos).Normalize()
	}
	if dir == (geom.Vec2{}) || !dir.IsFinite() {
		return false
	}
	ball.Vel = dir.Scale(w.tuning.KickForce * forceFrac)
	return true
}

// Reset restores the kickoff layout and zeroes both score counters.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scoreHome = 0
	w.scoreAway = 0
	w.resetKickoffLocked()
}

// ResetKickoff restores the kickoff layout without touching the score.
func (w *World) ResetKickoff() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetKickoffLocked()
}

func (w *World) resetKickoffLocked() {
	homeSpawns, awaySpawns := kickoffLayout(w.mode, w.tuning)
	for slot, i := range w.home {
		b := w.bodies[i]
		b.Pos = homeSpawns[slot]
		b.Vel = geom.Vec2{}
		b.InputAccel = geom.Vec2{}
	}
	for slot, i := range w.away {
		b := w.bodies[i]
		b.Pos = awaySpawns[slot]
		b.Vel = geom.Vec2{}
		b.InputAccel = geom.Vec2{}
	}

	ball := w.bodies[w.ballIdx]
	ball.Pos = geom.Vec2{X: w.tuning.ArenaWidth / 2, Y: w.tuning.ArenaHeight / 2}
	ball.Freeze(KickoffFreezeTime)
	w.kickoffTimer = KickoffFreezeTime
	w.appendEvent("kickoff", "", 0)
}

// SetPaused toggles the external pause flag.
func (w *World) SetPaused(paused bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused == paused {
		return
	}
	w.paused = paused
	ev := "pause"
	if !paused {
		ev = "resume"
	}
	w.appendEvent(ev, "", 0)
}

// Paused reports the external pause flag.
func (w *World) Paused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paused
}

// Mode returns the active roster mode.
func (w *World) Mode() Mode {
	return w.mode
}

// MatchID returns the identifier assigned at construction.
func (w *World) MatchID() string {
	return w.matchID
}

// Score returns the current counters.
func (w *World) Score() types.ScoreState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return types.ScoreState{Home: w.scoreHome, Away: w.scoreAway}
}

// HomeRoster returns the entity indices of the human-controlled side.
func (w *World) HomeRoster() []int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]int, len(w.home))
	copy(out, w.home)
	return out
}

// AwayRoster returns the entity indices of the bot-controlled side.
func (w *World) AwayRoster() []int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]int, len(w.away))
	copy(out, w.away)
	return out
}

// LeadHuman returns the entity index of the human player (home slot 0).
func (w *World) LeadHuman() int {
	return w.home[0]
}

// BallState returns a copy of the ball's replicated state.
func (w *World) BallState() types.BallState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ballStateLocked()
}

func (w *World) ballStateLocked() types.BallState {
	ball := w.bodies[w.ballIdx]
	return types.BallState{
		Position:   ball.Pos,
		Velocity:   ball.Vel,
		Radius:     ball.Radius,
		Frozen:     ball.Frozen,
		FreezeLeft: ball.FreezeLeft,
	}
}

// Snapshot returns a deep copy of state for safe replication.
func (w *World) Snapshot() types.MatchState {
	w.mu.RLock()
	defer w.mu.RUnlock()

	players := make([]types.PlayerState, 0, len(w.home)+len(w.away))
	for slot, i := range w.home {
		players = append(players, w.playerStateLocked(slot, TeamHome, i))
	}
	for slot, i := range w.away {
		players = append(players, w.playerStateLocked(slot, TeamAway, i))
	}

	events := make([]types.GameplayEvent, len(w.events))
	copy(events, w.events)

	return types.MatchState{
		MatchID:   w.matchID,
		Mode:      string(w.mode),
		Tick:      w.tick,
		Paused:    w.paused,
		CreatedAt: w.createdAt,
		Players:   players,
		Ball:      w.ballStateLocked(),
		Score:     types.ScoreState{Home: w.scoreHome, Away: w.scoreAway},
		Events:    events,
	}
}

func (w *World) playerStateLocked(slot int, team string, idx int) types.PlayerState {
	b := w.bodies[idx]
	return types.PlayerState{
		Index:    slot,
		Team:     team,
		IsHuman:  b.IsHuman,
		Position: b.Pos,
		Velocity: b.Vel,
		Radius:   b.Radius,
	}
}

// playerAt returns the player body at the entity index, nil otherwise.
func (w *World) playerAt(idx int) *Body {
	if idx < 0 || idx >= len(w.bodies) {
		return nil
	}
	b := w.bodies[idx]
	if b.Kind != KindPlayer {
		return nil
	}
	return b
}

// rosterOf returns the team and roster slot for an entity index.
func (w *World) rosterOf(idx int) (team string, slot int, ok bool) {
	for s, i := range w.home {
		if i == idx {
			return TeamHome, s, true
		}
	}
	for s, i := range w.away {
		if i == idx {
			return TeamAway, s, true
		}
	}
	return "", 0, false
}

// attackSign is +1 for the home side (attacks the right goal), -1 for away.
func attackSign(team string) float64 {
	if team == TeamAway {
		return -1
	}
	return 1
}

func (w *World) appendEvent(typ, team string, slot int) {
	w.events = append(w.events, types.GameplayEvent{
		Type:        typ,
		Team:        team,
		PlayerIndex: slot,
		OccurredMS:  time.Now().UTC().UnixMilli(),
	})
}
