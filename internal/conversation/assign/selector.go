// Package assign picks the consultant who will own a handed-off conversation.
package assign

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"tripflow_backend/internal/consultants/repository"
	"tripflow_backend/internal/conversation/handoff"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Directory is the read-side consultant lookup the selector depends on.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Consultant, error)
	ListActiveWithLoad(ctx context.Context) ([]repository.Load, error)
}

// randomPoolSize bounds the random pick for medium/low priority so low-urgency
// work is not always funneled to the single least-loaded consultant.
const randomPoolSize = 3

// Selector implements the assignment algorithm: continuity first, then
// least-loaded for urgent work, then randomized among the least loaded for
// everything else.
type Selector struct {
	dir Directory
	log *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a selector. rng is injectable for deterministic tests; pass a
// seeded source in production wiring.
func New(dir Directory, rng *rand.Rand, log *logger.Logger) *Selector {
	return &Selector{dir: dir, rng: rng, log: log}
}

// Select returns the consultant to assign, or nil when no active consultant
// exists. A nil result is not an error: the caller must record the handoff
// anyway and surface the exhaustion as a degraded-service condition.
func (s *Selector) Select(ctx context.Context, current *uuid.UUID, priority string) (*repository.Consultant, error) {
	// Continuity over load-balancing: an active assigned consultant is reused
	// unconditionally.
	if current != nil {
		c, err := s.dir.GetByID(ctx, *current)
		if err == nil && c.Active {
			return &c, nil
		}
	}

	loads, err := s.dir.ListActiveWithLoad(ctx)
	if err != nil {
		return nil, err
	}
	if len(loads) == 0 {
		s.log.Warn("no active consultant available for assignment", "priority", priority)
		return nil, nil
	}

	// Loads arrive ordered by earliest-created consultant; the stable sort
	// keeps that as the tie-break within equal open-lead counts.
	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].OpenLeads < loads[j].OpenLeads
	})

	switch priority {
	case handoff.PriorityUrgent, handoff.PriorityHigh:
		return &loads[0].Consultant, nil
	default:
		pool := randomPoolSize
		if len(loads) < pool {
			pool = len(loads)
		}
		s.mu.Lock()
		idx := s.rng.Intn(pool)
		s.mu.Unlock()
		return &loads[idx].Consultant, nil
	}
}
