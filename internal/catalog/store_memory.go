package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]Item
	nextID int64
	now    func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[int64]Item{}, nextID: 1, now: time.Now}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Get(_ context.Context, id int64) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.m[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	return it, nil
}

func (s *MemStore) GetMany(_ context.Context, ids []int64) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.m[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *MemStore) List(_ context.Context, q ListQuery) ([]Item, error) {
	if q.Sort.Column() == "" {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrValidation, q.Sort)
	}

	matched := s.matching(q.Search)
	slices.SortFunc(matched, func(a, b Item) int {
		var c int
		switch q.Sort {
		case SortAlpha:
			c = cmp.Compare(a.Name, b.Name)
		case SortPrice:
			c = a.Price.Cmp(b.Price)
		case SortNo:
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if q.Offset >= len(matched) {
		return []Item{}, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], nil
}

func (s *MemStore) Count(_ context.Context, search string) (int, error) {
	return len(s.matching(search)), nil
}

func (s *MemStore) matching(search string) []Item {
	needle := strings.ToLower(search)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.m))
	for _, it := range s.m {
		if !it.Active {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(it.Name), needle) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *MemStore) Create(_ context.Context, in ItemInput) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	it := Item{
		ID:            s.nextID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		ImageFileName: in.ImageFileName,
		Active:        in.Active == nil || *in.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.nextID++
	s.m[it.ID] = it
	return it, nil
}

func (s *MemStore) Update(_ context.Context, id int64, in ItemInput) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.m[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}

	it.Name = strings.TrimSpace(in.Name)
	it.Description = in.Description
	it.Price = in.Price
	it.ImageFileName = in.ImageFileName
	if in.Active != nil {
		it.Active = *in.Active
	}
	it.UpdatedAt = s.now().UTC()

	s.m[id] = it
	return it, nil
}
