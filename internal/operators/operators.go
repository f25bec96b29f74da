// Package operators keeps the allowlist of support staff chats. Operators
// receive handoff tickets and may request conversation reports.
package operators

import (
	"sort"
	"sync"
)

type Operator struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Repository interface {
	LoadAll() ([]Operator, error)
	Upsert(op Operator) error
	Remove(id int64) error
}

// Service is the in-memory view of the operator list, backed by a
// repository. It is safe for use from concurrent bot workers.
type Service struct {
	repo Repository

	mu  sync.RWMutex
	ops map[int64]Operator
}

// NewService preloads the repository and merges ids configured in the
// environment.
func NewService(repo Repository, initial []int64) (*Service, error) {
	s := &Service{repo: repo, ops: make(map[int64]Operator)}
	if repo != nil {
		stored, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, op := range stored {
			s.ops[op.ID] = op
		}
	}
	for _, id := range initial {
		if _, ok := s.ops[id]; !ok {
			s.ops[id] = Operator{ID: id}
		}
	}
	return s, nil
}

func (s *Service) IsOperator(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ops[id]
	return ok
}

func (s *Service) Upsert(op Operator) error {
	s.mu.Lock()
	s.ops[op.ID] = op
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(op)
	}
	return nil
}

func (s *Service) Remove(id int64) error {
	s.mu.Lock()
	delete(s.ops, id)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(id)
	}
	return nil
}

// List returns the operators ordered by id.
func (s *Service) List() []Operator {
	s.mu.RLock()
	out := make([]Operator, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChatIDs returns the ids handoff notifications are sent to.
func (s *Service) ChatIDs() []int64 {
	ops := s.List()
	ids := make([]int64, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return ids
}
