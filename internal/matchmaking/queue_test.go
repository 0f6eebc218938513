package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/mrassell/haxball-solo/internal/shared/types"
)

func TestQueueAssignsSoloMatch(t *testing.T) {
	q := NewQueueManager("ws://localhost:9003/ws")
	a := q.Join(types.QueueJoinRequest{PlayerID: "p1", DisplayName: "A", Region: "us-east", Playlist: "casual-2v2", MMR: 1200})

	q.mu.Lock()
	if ta, ok := q.ticketIndex[a.TicketID]; ok {
		ta.JoinedAt = time.Now().UTC().Add(-10 * time.Second)
	}
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	ap := q.Poll(a.TicketID)
	if ap.Status != "matched" {
		t.Fatalf("expected ticket matched, got=%s", ap.Status)
	}
	if ap.Assignment == nil {
		t.Fatal("expected an assignment")
	}
	if ap.Assignment.Mode != "2v2" {
		t.Fatalf("expected mode 2v2 from playlist, got=%s", ap.Assignment.Mode)
	}
	if ap.Assignment.ServerAddr == "" || ap.Assignment.MatchID == "" {
		t.Fatalf("incomplete assignment: %+v", ap.Assignment)
	}
	if ap.Assignment.Difficulty <= 0 || ap.Assignment.Difficulty >= 1 {
		t.Fatalf("mid-MMR ticket should land mid-curve, got=%f", ap.Assignment.Difficulty)
	}
}

func TestQueueHoldsTicketThroughMinimumWait(t *testing.T) {
	q := NewQueueManager("")
	a := q.Join(types.QueueJoinRequest{PlayerID: "p1", DisplayName: "A", Playlist: "casual-1v1", MMR: 1000})

	q.process()

	ap := q.Poll(a.TicketID)
	if ap.Status != "searching" {
		t.Fatalf("fresh ticket should still be searching, got=%s", ap.Status)
	}
}

func TestQueueLeaveCancelsTicket(t *testing.T) {
	q := NewQueueManager("")
	a := q.Join(types.QueueJoinRequest{PlayerID: "p1", DisplayName: "A", Playlist: "casual-1v1", MMR: 1000})

	if !q.Leave(a.TicketID) {
		t.Fatal("expected leave to succeed")
	}
	if q.Leave(a.TicketID) {
		t.Fatal("second leave should fail")
	}

	ap := q.Poll(a.TicketID)
	if ap.Status != "not_found" {
		t.Fatalf("cancelled ticket should be gone, got=%s", ap.Status)
	}
}

func TestPollUnknownTicket(t *testing.T) {
	q := NewQueueManager("")
	p := q.Poll("missing")
	if p.Status != "not_found" {
		t.Fatalf("expected not_found, got=%s", p.Status)
	}
}

func TestDifficultyForMMRCurve(t *testing.T) {
	cases := []struct {
		mmr  int
		want float64
	}{
		{0, 0},
		{600, 0},
		{1200, 0.5},
		{1800, 1},
		{3000, 1},
	}
	for _, tc := range cases {
		if got := DifficultyForMMR(tc.mmr); got != tc.want {
			t.Fatalf("mmr=%d got=%f want=%f", tc.mmr, got, tc.want)
		}
	}
}

func TestModeForPlaylist(t *testing.T) {
	if got := ModeForPlaylist("casual-3v3"); got != "3v3" {
		t.Fatalf("got=%s", got)
	}
	if got := ModeForPlaylist("something-else"); got != "1v1" {
		t.Fatalf("unknown playlist should fall back to 1v1, got=%s", got)
	}
}
