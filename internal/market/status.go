package market

import (
	"strings"

	"taskmarket/internal/models"
)

// transitions is the single source of truth for legal task status changes.
// Every predicate below is derived from this table; nothing else in the
// system may set a task status directly.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskOpen:      {models.TaskInAuction, models.TaskCancelled},
	models.TaskInAuction: {models.TaskAssigned, models.TaskOpen, models.TaskCancelled},
	models.TaskAssigned:  {models.TaskRunning, models.TaskCancelled},
	models.TaskRunning:   {models.TaskCompleted, models.TaskFailed},
	models.TaskCompleted: nil,
	models.TaskFailed:    nil,
	models.TaskCancelled: nil,
}

// AssertTransition fails with a conflict error naming the disallowed edge
// and the legal next states when the transition is not in the table.
func AssertTransition(from, to models.TaskStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return Conflictf("unknown task status %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	if len(allowed) == 0 {
		return Conflictf("illegal task transition %s -> %s: %s is terminal", from, to, from)
	}
	return Conflictf("illegal task transition %s -> %s (legal next states: %s)", from, to, joinStatuses(allowed))
}

// LegalNext returns the states reachable from s.
func LegalNext(s models.TaskStatus) []models.TaskStatus {
	return append([]models.TaskStatus(nil), transitions[s]...)
}

// CanAcceptOffers reports whether a task in status s may receive offers,
// i.e. assignment is still reachable in one step.
func CanAcceptOffers(s models.TaskStatus) bool {
	return AssertTransition(s, models.TaskAssigned) == nil
}

// CanBeCancelled reports whether cancellation is reachable from s.
func CanBeCancelled(s models.TaskStatus) bool {
	return AssertTransition(s, models.TaskCancelled) == nil
}

// CanStartExecution reports whether execution may start from s.
func CanStartExecution(s models.TaskStatus) bool {
	return AssertTransition(s, models.TaskRunning) == nil
}

// CanComplete reports whether completion is reachable from s.
func CanComplete(s models.TaskStatus) bool {
	return AssertTransition(s, models.TaskCompleted) == nil
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s models.TaskStatus) bool {
	allowed, ok := transitions[s]
	return ok && len(allowed) == 0
}

func joinStatuses(ss []models.TaskStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
