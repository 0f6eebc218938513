package simulation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// Collision resolution. Penetration below the slop is tolerated; the
	// remainder is corrected by the percent share each tick to avoid jitter.
	CollisionSlop     = 0.1
	CorrectionPercent = 0.8

	// KickoffFreezeTime holds the ball still after every goal, in seconds.
	KickoffFreezeTime = 1.0
)

// Tuning carries every physical constant for one session. It is fixed at
// world construction and never mutated afterwards.
type Tuning struct {
	ArenaWidth    float64 `yaml:"arena_width"`
	ArenaHeight   float64 `yaml:"arena_height"`
	GoalHeight    float64 `yaml:"goal_height"`
	WallThickness float64 `yaml:"wall_thickness"`

	PlayerRadius      float64 `yaml:"player_radius"`
	PlayerMass        float64 `yaml:"player_mass"`
	PlayerRestitution float64 `yaml:"player_restitution"`
	PlayerMaxSpeed    float64 `yaml:"player_max_speed"`
	PlayerAccel       float64 `yaml:"player_accel"`
	PlayerDamping     float64 `yaml:"player_damping"`

	BallRadius      float64 `yaml:"ball_radius"`
	BallMass        float64 `yaml:"ball_mass"`
	BallRestitution float64 `yaml:"ball_restitution"`
	BallMaxSpeed    float64 `yaml:"ball_max_speed"`
	BallDamping     float64 `yaml:"ball_damping"`

	KickRadius float64 `yaml:"kick_radius"`
	KickForce  float64 `yaml:"kick_force"`
}

// DefaultTuning returns the stock field used by every playlist.
func DefaultTuning() Tuning {
	return Tuning{
		ArenaWidth:    900,
		ArenaHeight:   540,
		GoalHeight:    180,
		WallThickness: 12,

		PlayerRadius:      16,
		PlayerMass:        8,
		PlayerRestitution: 0.2,
		PlayerMaxSpeed:    240,
		PlayerAccel:       900,
		PlayerDamping:     0.94,

		BallRadius:      10,
		BallMass:        1,
		BallRestitution: 0.72,
		BallMaxSpeed:    620,
		BallDamping:     0.985,

		KickRadius: 42,
		KickForce:  560,
	}
}

// LoadTuning reads a YAML override file on top of the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// Validate rejects values the physics cannot run on.
func (t Tuning) Validate() error {
	if t.ArenaWidth <= 0 || t.ArenaHeight <= 0 {
		return fmt.Errorf("arena dimensions must be positive")
	}
	if t.GoalHeight <= 0 || t.GoalHeight >= t.ArenaHeight {
		return fmt.Errorf("goal height must be within arena height")
	}
	if t.PlayerMass <= 0 || t.BallMass <= 0 {
		return fmt.Errorf("masses must be positive")
	}
	if t.PlayerDamping <= 0 || t.PlayerDamping > 1 || t.BallDamping <= 0 || t.BallDamping > 1 {
		return fmt.Errorf("damping factors must be in (0,1]")
	}
	if t.PlayerRestitution < 0 || t.PlayerRestitution > 1 || t.BallRestitution < 0 || t.BallRestitution > 1 {
		return fmt.Errorf("restitution must be in [0,1]")
	}
	if t.KickRadius <= 0 || t.KickForce <= 0 {
		return fmt.Errorf("kick radius and force must be positive")
	}
	return nil
}

// goalMouthSpan returns the vertical extent of both goal mouths.
func (t Tuning) goalMouthSpan() (top, bottom float64) {
	top = (t.ArenaHeight - t.GoalHeight) / 2
	return top, top + t.GoalHeight
}
