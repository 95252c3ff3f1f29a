package market

import (
	"testing"

	"taskmarket/internal/models"
)

var allStatuses = []models.TaskStatus{
	models.TaskOpen,
	models.TaskInAuction,
	models.TaskAssigned,
	models.TaskRunning,
	models.TaskCompleted,
	models.TaskFailed,
	models.TaskCancelled,
}

var validEdges = map[models.TaskStatus][]models.TaskStatus{
	models.TaskOpen:      {models.TaskInAuction, models.TaskCancelled},
	models.TaskInAuction: {models.TaskAssigned, models.TaskOpen, models.TaskCancelled},
	models.TaskAssigned:  {models.TaskRunning, models.TaskCancelled},
	models.TaskRunning:   {models.TaskCompleted, models.TaskFailed},
}

func TestAssertTransition_AllValidEdges(t *testing.T) {
	for from, tos := range validEdges {
		for _, to := range tos {
			if err := AssertTransition(from, to); err != nil {
				t.Errorf("expected %s -> %s to be legal, got %v", from, to, err)
			}
		}
	}
}

func TestAssertTransition_AllInvalidEdges_Conflict(t *testing.T) {
	for _, from := range allStatuses {
		allowed := make(map[models.TaskStatus]bool)
		for _, to := range validEdges[from] {
			allowed[to] = true
		}
		for _, to := range allStatuses {
			if allowed[to] {
				continue
			}
			err := AssertTransition(from, to)
			if err == nil {
				t.Errorf("expected %s -> %s to be illegal", from, to)
				continue
			}
			if KindOf(err) != KindConflict {
				t.Errorf("expected conflict for %s -> %s, got kind %q", from, to, KindOf(err))
			}
		}
	}
}

func TestAssertTransition_UnknownStatus(t *testing.T) {
	err := AssertTransition(models.TaskStatus("bogus"), models.TaskOpen)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict for unknown status, got %v", err)
	}
}

// The predicates must never diverge from the transition table.
func TestPredicates_DerivedFromTable(t *testing.T) {
	for _, s := range allStatuses {
		if got, want := CanAcceptOffers(s), s == models.TaskInAuction; got != want {
			t.Errorf("CanAcceptOffers(%s) = %v, want %v", s, got, want)
		}
		if got, want := CanStartExecution(s), s == models.TaskAssigned; got != want {
			t.Errorf("CanStartExecution(%s) = %v, want %v", s, got, want)
		}
		if got, want := CanComplete(s), s == models.TaskRunning; got != want {
			t.Errorf("CanComplete(%s) = %v, want %v", s, got, want)
		}
		wantCancel := s == models.TaskOpen || s == models.TaskInAuction || s == models.TaskAssigned
		if got := CanBeCancelled(s); got != wantCancel {
			t.Errorf("CanBeCancelled(%s) = %v, want %v", s, got, wantCancel)
		}
		wantTerminal := s == models.TaskCompleted || s == models.TaskFailed || s == models.TaskCancelled
		if got := IsTerminal(s); got != wantTerminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, wantTerminal)
		}
	}
}

func TestLegalNext_CopiesTable(t *testing.T) {
	next := LegalNext(models.TaskOpen)
	if len(next) != 2 {
		t.Fatalf("expected 2 next states from open, got %v", next)
	}
	next[0] = models.TaskFailed
	if err := AssertTransition(models.TaskOpen, models.TaskInAuction); err != nil {
		t.Fatalf("mutating LegalNext result must not affect the table: %v", err)
	}
}
