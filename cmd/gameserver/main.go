package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mrassell/haxball-solo/internal/shared/logger"
	"github.com/mrassell/haxball-solo/internal/shared/types"
	"github.com/mrassell/haxball-solo/internal/simulation"
)

const (
	simHz         = 120
	replicationHz = 30

	// Bound on catch-up steps per frame. Past it the backlog is dropped so a
	// stalled host does not spiral.
	maxStepsPerFrame = 5
)

type client struct {
	playerID string
	conn     *websocket.Conn
	send     chan []byte
}

type server struct {
	log          *logger.Logger
	world        *simulation.World
	bots         *simulation.Engine
	botAccelMult float64
	upgrader     websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*client
	seatedID string // the client holding the human seat

	inputMu sync.Mutex
	pending types.PlayerInput
}

func main() {
	log := logger.New("gameserver")
	defer func() { _ = log.Sync() }()

	addr := getEnv("GAME_ADDR", ":9003")
	matchID := getEnv("MATCH_ID", uuid.NewString())
	mode, err := simulation.ParseMode(getEnv("GAME_MODE", "1v1"))
	if err != nil {
		log.Fatalf("bad GAME_MODE: %v", err)
	}
	difficulty := getEnvFloat("BOT_DIFFICULTY", 0.7)

	tuning := simulation.DefaultTuning()
	if path := os.Getenv("GAME_TUNING"); path != "" {
		tuning, err = simulation.LoadTuning(path)
		if err != nil {
			log.Fatalf("load tuning: %v", err)
		}
		log.Infof("tuning loaded from %s", path)
	}

	engine := simulation.NewEngine(difficulty, nil)
	s := &server{
		log:          log,
		world:        simulation.NewWorld(matchID, mode, tuning),
		bots:         engine,
		botAccelMult: simulation.BotAccelMultiplier(engine.Difficulty()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runSimulationLoop(ctx) })
	g.Go(func() error { return s.runReplicationLoop(ctx) })
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Infof("authoritative game server listening on %s (match=%s mode=%s difficulty=%.2f)",
		addr, matchID, mode, engine.Difficulty())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   "ok",
		"match_id": s.world.MatchID(),
		"mode":     string(s.world.Mode()),
	})
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "guest_" + uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade error: %v", err)
		return
	}

	c := &client{playerID: playerID, conn: conn, send: make(chan []byte, 64)}
	seated := s.register(c)

	role := "spectator"
	if seated {
		role = "player"
	}
	s.log.Infof("client connected player=%s role=%s remote=%s", playerID, role, r.RemoteAddr)

	welcome := types.ServerEnvelope{
		Type:     "welcome",
		State:    ptrState(s.world.Snapshot()),
		ServerMS: time.Now().UTC().UnixMilli(),
		Message:  role,
	}
	if payload, err := json.Marshal(welcome); err == nil {
		select {
		case c.send <- payload:
		default:
		}
	}

	go s.writePump(c)
	s.readPump(c)
}

func (s *server) readPump(c *client) {
	defer func() {
		s.unregister(c.playerID)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Infof("client disconnected player=%s", c.playerID)
				return
			}
			s.log.Warnf("read error player=%s err=%v", c.playerID, err)
			return
		}

		var in types.ClientEnvelope
		if err := json.Unmarshal(msg, &in); err != nil {
			s.sendError(c, "bad_payload")
			continue
		}

		switch in.Type {
		case "input":
			if in.Input == nil {
				s.sendError(c, "missing_input")
				continue
			}
			if !s.holdsSeat(c.playerID) {
				continue // spectators have no seat
			}
			s.storeInput(*in.Input)
		case "pause":
			if in.Paused == nil || !s.holdsSeat(c.playerID) {
				continue
			}
			s.world.SetPaused(*in.Paused)
		case "ping":
			pong := types.ServerEnvelope{Type: "pong", ServerMS: time.Now().UTC().UnixMilli()}
			if payload, err := json.Marshal(pong); err == nil {
				select {
				case c.send <- payload:
				default:
				}
			}
		default:
			s.sendError(c, "unsupported_message_type")
		}
	}
}

// storeInput keeps the latest movement while OR-ing the edge-triggered action
// flags, so a tap between two ticks is never lost.
func (s *server) storeInput(in types.PlayerInput) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if in.Sequence != 0 && in.Sequence < s.pending.Sequence {
		return // stale packet
	}
	kick := s.pending.Kick || in.Kick
	pass := s.pending.Pass || in.Pass
	s.pending = in
	s.pending.Kick = kick
	s.pending.Pass = pass
}

// consumeInput returns the pending input and clears the action flags.
func (s *server) consumeInput() types.PlayerInput {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	in := s.pending
	s.pending.Kick = false
	s.pending.Pass = false
	return in
}

func (s *server) writePump(c *client) {
	ticker := time.NewTicker(20 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		}
	}
}

// register stores the client and claims the human seat if it is free.
func (s *server) register(c *client) (seated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.playerID] = c
	if s.seatedID == "" {
		s.seatedID = c.playerID
		return true
	}
	return false
}

func (s *server) unregister(playerID string) {
	s.mu.Lock()
	if c, ok := s.clients[playerID]; ok {
		close(c.send)
		delete(s.clients, playerID)
	}
	releasedSeat := s.seatedID == playerID
	if releasedSeat {
		s.seatedID = ""
	}
	s.mu.Unlock()

	if releasedSeat {
		s.inputMu.Lock()
		s.pending = types.PlayerInput{}
		s.inputMu.Unlock()
		s.world.SetPaused(true)
		s.log.Infof("human seat released, match paused (player=%s)", playerID)
	}
}

func (s *server) holdsSeat(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seatedID == playerID
}

func (s *server) sendError(c *client, message string) {
	errPayload, _ := json.Marshal(types.ServerEnvelope{
		Type:    "error",
		Message: message,
	})
	select {
	case c.send <- errPayload:
	default:
	}
}

func (s *server) runSimulationLoop(ctx context.Context) error {
	const step = 1.0 / simHz

	ticker := time.NewTicker(time.Second / simHz)
	defer ticker.Stop()

	last := time.Now()
	var acc float64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			acc += now.Sub(last).Seconds()
			last = now

			steps := 0
			for acc >= step && steps < maxStepsPerFrame {
				s.stepOnce(step)
				acc -= step
				steps++
			}
			if steps == maxStepsPerFrame {
				acc = 0
			}
		}
	}
}

// stepOnce runs one fixed tick: write every agent's steering, resolve queued
// kick/pass actions, then integrate.
func (s *server) stepOnce(dt float64) {
	human := s.world.LeadHuman()
	in := s.consumeInput()
	s.world.ApplyInput(human, in.Move)

	for _, idx := range s.world.HomeRoster() {
		if idx == human {
			continue
		}
		s.world.ApplyInput(idx, s.bots.Steer(s.world, idx, true))
	}
	for _, idx := range s.world.AwayRoster() {
		s.world.ApplyInput(idx, s.bots.Steer(s.world, idx, false))
	}

	if in.Pass {
		if _, ok := s.world.TryPass(human); !ok {
			// A pass tap with no receiver still clears the ball.
			s.world.TryKick(human)
		}
	} else if in.Kick {
		s.world.TryKick(human)
	}

	for _, idx := range s.world.HomeRoster() {
		if idx == human {
			continue
		}
		if s.bots.ShouldKick(s.world, idx, true) {
			if _, ok := s.world.TryPass(idx); !ok {
				s.world.TryKick(idx)
			}
		}
	}
	for _, idx := range s.world.AwayRoster() {
		if s.bots.ShouldKick(s.world, idx, false) {
			if _, ok := s.world.TryPass(idx); !ok {
				s.world.TryKick(idx)
			}
		}
	}

	if outcome := s.world.Update(dt, s.botAccelMult); outcome != simulation.NoGoal {
		score := s.world.Score()
		s.log.Infof("goal scored match=%s home=%d away=%d", s.world.MatchID(), score.Home, score.Away)
	}
}

func (s *server) runReplicationLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / replicationHz)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			state := s.world.Snapshot()
			env := types.ServerEnvelope{
				Type:     "state",
				Tick:     state.Tick,
				State:    &state,
				ServerMS: time.Now().UTC().UnixMilli(),
				AckSeq:   s.lastSequence(),
			}
			payload, err := json.Marshal(env)
			if err != nil {
				s.log.Errorf("marshal state failed: %v", err)
				continue
			}

			s.mu.RLock()
			for _, c := range s.clients {
				select {
				case c.send <- payload:
				default:
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *server) lastSequence() uint64 {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.pending.Sequence
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func ptrState(s types.MatchState) *types.MatchState {
	return &s
}
