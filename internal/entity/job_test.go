package entity_test

import (
	"sort"
	"testing"

	"transcription-service/internal/entity"
)

var allStatuses = []entity.JobStatus{
	entity.StatusPending,
	entity.StatusProcessing,
	entity.StatusCompleted,
	entity.StatusFailed,
}

func TestCanTransition_OnlyDeclaredEdges(t *testing.T) {
	allowed := map[[2]entity.JobStatus]bool{
		{entity.StatusPending, entity.StatusProcessing}:   true,
		{entity.StatusProcessing, entity.StatusCompleted}: true,
		{entity.StatusProcessing, entity.StatusFailed}:    true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := entity.CanTransition(from, to)
			want := allowed[[2]entity.JobStatus{from, to}]
			if got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []entity.JobStatus{entity.StatusCompleted, entity.StatusFailed} {
		if !from.IsTerminal() {
			t.Fatalf("expected %s to be terminal", from)
		}
		for _, to := range allStatuses {
			if entity.CanTransition(from, to) {
				t.Fatalf("unexpected edge %s -> %s", from, to)
			}
		}
	}
}

func TestNothingLeadsBackToPending(t *testing.T) {
	if p := entity.Predecessors(entity.StatusPending); len(p) != 0 {
		t.Fatalf("expected no predecessors of PENDING, got %v", p)
	}
}

func TestPredecessors(t *testing.T) {
	got := entity.Predecessors(entity.StatusProcessing)
	if len(got) != 1 || got[0] != entity.StatusPending {
		t.Fatalf("expected [PENDING], got %v", got)
	}

	got = entity.Predecessors(entity.StatusFailed)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 1 || got[0] != entity.StatusProcessing {
		t.Fatalf("expected [PROCESSING], got %v", got)
	}
}

func TestLower(t *testing.T) {
	if got := entity.StatusCompleted.Lower(); got != "completed" {
		t.Fatalf("expected completed, got %s", got)
	}
	if entity.JobStatus("DONE").Valid() {
		t.Fatal("unexpected valid status DONE")
	}
}
