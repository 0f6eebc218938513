package matchmaking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrassell/haxball-solo/internal/shared/types"
	"github.com/mrassell/haxball-solo/internal/simulation"
)

// MinQueueWait is how long a ticket sits in "searching" before it is assigned
// a bot lineup. The delay exists so the client can show a search state and so
// a burst of joins lands on staggered match IDs.
const MinQueueWait = 2 * time.Second

// Difficulty curve anchors. MMR at or below the floor gets the easiest bots,
// at or above the ceiling the hardest.
const (
	mmrFloor   = 600
	mmrCeiling = 1800
)

// Ticket is a queue entry.
type Ticket struct {
	TicketID    string
	PlayerID    string
	DisplayName string
	MMR         int
	Region      string
	Playlist    string
	JoinedAt    time.Time
	Status      string // searching|matched|cancelled
}

// QueueManager provides in-memory matchmaking for local and staging usage.
// Every match is one human versus a bot lineup, so tickets are never paired;
// the queue's job is playlist validation, difficulty selection, and handing
// out the game server address.
type QueueManager struct {
	mu          sync.RWMutex
	buckets     map[string][]*Ticket
	ticketIndex map[string]*Ticket
	assignment  map[string]*types.MatchAssignment
	serverAddr  string
}

func NewQueueManager(serverAddr string) *QueueManager {
	if serverAddr == "" {
		serverAddr = "ws://localhost:9003/ws"
	}
	return &QueueManager{
		buckets:     make(map[string][]*Ticket),
		ticketIndex: make(map[string]*Ticket),
		assignment:  make(map[string]*types.MatchAssignment),
		serverAddr:  serverAddr,
	}
}

func bucketKey(region, playlist string) string {
	if region == "" {
		region = "global"
	}
	if playlist == "" {
		playlist = "casual-1v1"
	}
	return region + "|" + playlist
}

// ModeForPlaylist maps a queue playlist onto the simulation roster mode.
// Unknown playlists fall back to 1v1.
func ModeForPlaylist(playlist string) simulation.Mode {
	switch playlist {
	case "casual-2v2":
		return simulation.Mode2v2
	case "casual-3v3":
		return simulation.Mode3v3
	}
	return simulation.Mode1v1
}

// DifficultyForMMR maps player MMR onto the 0..1 bot difficulty knob with a
// linear ramp between the curve anchors.
func DifficultyForMMR(mmr int) float64 {
	d := float64(mmr-mmrFloor) / float64(mmrCeiling-mmrFloor)
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// Join adds the player to the queue.
func (q *QueueManager) Join(req types.QueueJoinRequest) types.QueueJoinResponse {
	now := time.Now().UTC()
	ticket := &Ticket{
		TicketID:    uuid.NewString(),
		PlayerID:    req.PlayerID,
		DisplayName: req.DisplayName,
		MMR:         req.MMR,
		Region:      req.Region,
		Playlist:    req.Playlist,
		JoinedAt:    now,
		Status:      "searching",
	}
	key := bucketKey(req.Region, req.Playlist)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.buckets[key] = append(q.buckets[key], ticket)
	q.ticketIndex[ticket.TicketID] = ticket

	return types.QueueJoinResponse{TicketID: ticket.TicketID, Status: ticket.Status}
}

// Leave removes the ticket from the queue.
func (q *QueueManager) Leave(ticketID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.ticketIndex[ticketID]
	if !ok {
		return false
	}

	key := bucketKey(t.Region, t.Playlist)
	bucket := q.buckets[key]
	for i := range bucket {
		if bucket[i].TicketID == ticketID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	q.buckets[key] = bucket
	t.Status = "cancelled"
	delete(q.ticketIndex, ticketID)
	delete(q.assignment, ticketID)
	return true
}

// Poll returns the current ticket status and assignment if available.
func (q *QueueManager) Poll(ticketID string) types.QueuePollResponse {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if a, ok := q.assignment[ticketID]; ok {
		copyA := *a
		return types.QueuePollResponse{TicketID: ticketID, Status: "matched", Assignment: &copyA}
	}

	t, ok := q.ticketIndex[ticketID]
	if !ok {
		return types.QueuePollResponse{TicketID: ticketID, Status: "not_found"}
	}
	return types.QueuePollResponse{TicketID: ticketID, Status: t.Status}
}

// Run continuously evaluates the queue and creates matches.
func (q *QueueManager) Run(ctx context.Context, cadence time.Duration) {
	if cadence <= 0 {
		cadence = time.Second
	}

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.process()
		}
	}
}

func (q *QueueManager) process() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	for key, bucket := range q.buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].JoinedAt.Before(bucket[j].JoinedAt)
		})

		region, playlist := splitKey(key)
		remaining := make([]*Ticket, 0, len(bucket))
		for _, t := range bucket {
			if t.Status != "searching" {
				continue
			}
			if now.Sub(t.JoinedAt) < MinQueueWait {
				remaining = append(remaining, t)
				continue
			}

			t.Status = "matched"
			q.assignment[t.TicketID] = &types.MatchAssignment{
				TicketID:    t.TicketID,
				MatchID:     uuid.NewString(),
				Region:      region,
				Playlist:    playlist,
				Mode:        string(ModeForPlaylist(playlist)),
				Difficulty:  DifficultyForMMR(t.MMR),
				ServerAddr:  q.serverAddr,
				FoundAtUnix: now.Unix(),
			}
		}
		q.buckets[key] = remaining
	}
}

func splitKey(key string) (region, playlist string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return "global", "casual-1v1"
}
