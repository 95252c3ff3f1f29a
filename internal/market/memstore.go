package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the core tests
// and the server when no database is configured. All reads and writes copy
// so callers never alias stored rows.
type MemoryStore struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]*models.Task
	agents     map[uuid.UUID]*models.Agent
	offers     map[uuid.UUID]*models.Offer
	events     map[uuid.UUID][]*models.ReputationEvent
	executions map[uuid.UUID]*models.Execution
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[uuid.UUID]*models.Task),
		agents:     make(map[uuid.UUID]*models.Agent),
		offers:     make(map[uuid.UUID]*models.Offer),
		events:     make(map[uuid.UUID][]*models.ReputationEvent),
		executions: make(map[uuid.UUID]*models.Execution),
	}
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *task
	s.tasks[t.ID] = &t
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to models.TaskStatus, assignedAgentID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from {
		return ErrStatusConflict
	}
	t.Status = to
	if assignedAgentID != nil {
		a := *assignedAgentID
		t.AssignedAgentID = &a
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListExpiredTasks(ctx context.Context, now time.Time) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.Deadline == nil || t.Deadline.After(now) {
			continue
		}
		if t.Status == models.TaskOpen || t.Status == models.TaskInAuction {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *agent
	s.agents[a.ID] = &a
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAgentReputation(ctx context.Context, id uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.ReputationScore = score
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateAgentStats(ctx context.Context, id uuid.UUID, stats models.AgentStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.CompletedCount = stats.CompletedCount
	a.FailedCount = stats.FailedCount
	a.AvgCompletionS = stats.AvgCompletionS
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateOffer(ctx context.Context, offer *models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offers {
		if o.TaskID == offer.TaskID && o.AgentID == offer.AgentID && o.Status == models.OfferPending {
			return ErrDuplicateOffer
		}
	}
	o := *offer
	s.offers[o.ID] = &o
	return nil
}

func (s *MemoryStore) ListOffersByTask(ctx context.Context, taskID uuid.UUID, status models.OfferStatus) ([]models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Offer
	for _, o := range s.offers {
		if o.TaskID != taskID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateOfferStatus(ctx context.Context, id uuid.UUID, from, to models.OfferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendReputationEvent(ctx context.Context, event *models.ReputationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := *event
	s.events[ev.AgentID] = append(s.events[ev.AgentID], &ev)
	return nil
}

func (s *MemoryStore) ListReputationEvents(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ReputationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[agentID]
	out := make([]models.ReputationEvent, 0, len(evs))
	// Stored oldest-first; callers want newest-first.
	for i := len(evs) - 1; i >= 0; i-- {
		out = append(out, *evs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *exec
	s.executions[e.ID] = &e
	return nil
}

func (s *MemoryStore) GetExecutionForTask(ctx context.Context, taskID uuid.UUID) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Execution
	for _, e := range s.executions {
		if e.TaskID != taskID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; !ok {
		return ErrNotFound
	}
	e := *exec
	s.executions[e.ID] = &e
	return nil
}

func (s *MemoryStore) ListExecutionsByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Execution
	for _, e := range s.executions {
		if e.AgentID == agentID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
