package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"species-catalog/internal/domain"
)

// memorySpeciesRepository keeps species in process memory. It follows the
// postgres repository semantics (id order, substring matching on the
// serialized tags, strictly increasing updated_at) and backs local
// development and handler tests.
type memorySpeciesRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*domain.Species
}

// NewMemorySpeciesRepository creates an empty in-memory SpeciesRepository
func NewMemorySpeciesRepository() SpeciesRepository {
	return &memorySpeciesRepository{
		nextID: 1,
		rows:   make(map[int64]*domain.Species),
	}
}

func cloneSpecies(s *domain.Species) *domain.Species {
	c := *s
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}

func (r *memorySpeciesRepository) Create(ctx context.Context, species *domain.Species) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	species.ID = r.nextID
	r.nextID++
	r.rows[species.ID] = cloneSpecies(species)
	return nil
}

func (r *memorySpeciesRepository) BulkCreate(ctx context.Context, species []*domain.Species) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range species {
		s.ID = r.nextID
		r.nextID++
		r.rows[s.ID] = cloneSpecies(s)
	}
	return len(species), nil
}

func (r *memorySpeciesRepository) Update(ctx context.Context, id int64, patch *domain.SpeciesPatch, nowMillis int64) (*domain.Species, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[id]
	if !ok {
		return nil, ErrSpeciesNotFound
	}

	updated := cloneSpecies(existing)
	patch.Apply(updated)
	updated.UpdatedAt = max(nowMillis, existing.UpdatedAt+1)
	r.rows[id] = updated

	return cloneSpecies(updated), nil
}

func (r *memorySpeciesRepository) Delete(ctx context.Context, id int64) (*domain.Species, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[id]
	if !ok {
		return nil, ErrSpeciesNotFound
	}
	delete(r.rows, id)

	return existing, nil
}

func (r *memorySpeciesRepository) FindByID(ctx context.Context, id int64) (*domain.Species, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.rows[id]
	if !ok {
		return nil, ErrSpeciesNotFound
	}
	return cloneSpecies(existing), nil
}

// matches mirrors the WHERE clause built by the postgres List
func matches(s *domain.Species, filter ListFilter) bool {
	if filter.Category != "" && string(s.Category) != filter.Category {
		return false
	}
	if filter.Query == "" {
		return true
	}
	if strings.Contains(s.CommonName, filter.Query) || strings.Contains(s.ScientificName, filter.Query) {
		return true
	}
	if s.Tags != nil {
		raw, err := tagsText(s.Tags)
		return err == nil && strings.Contains(raw, filter.Query)
	}
	return false
}

func (r *memorySpeciesRepository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]*domain.Species, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.rows))
	for id, s := range r.rows {
		if matches(s, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	species := []*domain.Species{}

	offset := pageOffset(page, pageSize)
	if offset >= total {
		return species, total, nil
	}
	end := min(offset+pageSize, total)

	for _, id := range ids[offset:end] {
		species = append(species, cloneSpecies(r.rows[id]))
	}
	return species, total, nil
}
