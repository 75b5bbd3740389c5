package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"species-catalog/internal/domain"
	"species-catalog/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxBulkItems bounds a single bulk insert
	MaxBulkItems = 500
)

// ListParams holds the list/search query parameters
type ListParams struct {
	Page     int
	PageSize int
	Query    string
	Category string
}

// ListResult is one page of species plus the filtered total
type ListResult struct {
	Data     []*domain.Species `json:"data"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
}

// BulkResult reports a committed bulk insert. BatchID correlates the
// insert in logs and is not sent to clients.
type BulkResult struct {
	Inserted  int       `json:"inserted"`
	BatchID   uuid.UUID `json:"-"`
	CreatedAt int64     `json:"-"`
}

// SpeciesService defines the interface for species business logic
type SpeciesService interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id int64) (*domain.Species, error)
	Create(ctx context.Context, in *domain.SpeciesInput) (*domain.Species, error)
	Update(ctx context.Context, id int64, patch *domain.SpeciesPatch) (*domain.Species, error)
	Delete(ctx context.Context, id int64) (*domain.Species, error)
	BulkCreate(ctx context.Context, items []json.RawMessage) (*BulkResult, error)
}

type speciesService struct {
	repo repository.SpeciesRepository
	now  func() time.Time
}

// NewSpeciesService creates a new instance of SpeciesService
func NewSpeciesService(repo repository.SpeciesRepository) SpeciesService {
	return NewSpeciesServiceWithClock(repo, time.Now)
}

// NewSpeciesServiceWithClock creates a SpeciesService stamping rows with now
func NewSpeciesServiceWithClock(repo repository.SpeciesRepository, now func() time.Time) SpeciesService {
	return &speciesService{repo: repo, now: now}
}

func (s *speciesService) nowMillis() int64 {
	return s.now().UnixMilli()
}

// ParseID validates a path or query id
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid(CodeInvalidID, "Valid ID is required")
	}
	return id, nil
}

// ParseListParams reads page, pageSize, q and category from a query string.
// Absent values take their defaults and pageSize above MaxPageSize is clamped.
func ParseListParams(query url.Values) (ListParams, error) {
	params := ListParams{
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
		Query:    query.Get("q"),
		Category: query.Get("category"),
	}

	bad := invalid(CodeInvalidParameters, "Invalid page or pageSize parameters")

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return params, bad
		}
		params.Page = page
	}

	if raw := query.Get("pageSize"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			return params, bad
		}
		params.PageSize = min(pageSize, MaxPageSize)
	}

	if params.Page < 1 || params.PageSize < 1 {
		return params, bad
	}

	return params, nil
}

// List returns one page of species matching the optional category and
// free-text query
func (s *speciesService) List(ctx context.Context, params ListParams) (*ListResult, error) {
	params.PageSize = min(params.PageSize, MaxPageSize)
	if params.Page < 1 || params.PageSize < 1 {
		return nil, invalid(CodeInvalidParameters, "Invalid page or pageSize parameters")
	}

	filter := repository.ListFilter{Category: params.Category, Query: params.Query}
	species, total, err := s.repo.List(ctx, filter, params.Page, params.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list species: %w", err)
	}

	return &ListResult{
		Data:     species,
		Page:     params.Page,
		PageSize: params.PageSize,
		Total:    total,
	}, nil
}

// Get retrieves a single species
func (s *speciesService) Get(ctx context.Context, id int64) (*domain.Species, error) {
	return s.repo.FindByID(ctx, id)
}

func checkCategory(category string) *ValidationError {
	if !domain.Category(category).Valid() {
		return invalid(CodeInvalidCategory, "Category must be one of: %s", domain.CategoryList())
	}
	return nil
}

// Create validates the input and inserts a new species
func (s *speciesService) Create(ctx context.Context, in *domain.SpeciesInput) (*domain.Species, error) {
	required := []struct {
		name  string
		value string
	}{
		{"category", in.Category},
		{"commonName", in.CommonName},
		{"scientificName", in.ScientificName},
		{"family", in.Family},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, invalid(CodeMissingRequiredField, "Missing required field: %s", field.name)
		}
	}

	if err := checkCategory(in.Category); err != nil {
		return nil, err
	}

	species := domain.NewSpecies(in, s.nowMillis())
	if err := s.repo.Create(ctx, species); err != nil {
		return nil, err
	}

	return species, nil
}

// Update applies a partial update. Category is checked before the schema
// so that an unknown category reports INVALID_CATEGORY.
func (s *speciesService) Update(ctx context.Context, id int64, patch *domain.SpeciesPatch) (*domain.Species, error) {
	if patch.Category != nil {
		if err := checkCategory(*patch.Category); err != nil {
			return nil, err
		}
	}

	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	return s.repo.Update(ctx, id, patch, s.nowMillis())
}

// Delete removes a species and returns its last content
func (s *speciesService) Delete(ctx context.Context, id int64) (*domain.Species, error) {
	return s.repo.Delete(ctx, id)
}

func invalidBulkCategory() *ValidationError {
	return invalid(CodeInvalidCategory, "category must be one of: %s", domain.CategoryList())
}

// validateBulkItem applies the per-item rules in their reporting order
func validateBulkItem(in *domain.SpeciesInput) *ValidationError {
	switch {
	case in.Category == "":
		return invalid(CodeMissingCategory, "category is required")
	case !domain.Category(in.Category).Valid():
		return invalidBulkCategory()
	case in.CommonName == "":
		return invalid(CodeMissingCommonName, "commonName is required")
	case in.ScientificName == "":
		return invalid(CodeMissingScientificName, "scientificName is required")
	case in.Family == "":
		return invalid(CodeMissingFamily, "family is required")
	}
	return nil
}

// BulkCreate validates every item in order, stopping at the first invalid
// one, and only then inserts the whole batch in one transaction with a
// shared timestamp
func (s *speciesService) BulkCreate(ctx context.Context, items []json.RawMessage) (*BulkResult, error) {
	if err := checkBatchSize(len(items)); err != nil {
		return nil, err
	}

	inputs := make([]*domain.SpeciesInput, len(items))
	for i, raw := range items {
		in, verr := decodeBulkItem(raw)
		if verr == nil {
			verr = validateBulkItem(in)
		}
		if verr != nil {
			return nil, atItem(i, verr)
		}
		inputs[i] = in
	}

	now := s.nowMillis()
	species := make([]*domain.Species, len(inputs))
	for i, in := range inputs {
		species[i] = domain.NewSpecies(in, now)
	}

	inserted, err := s.repo.BulkCreate(ctx, species)
	if err != nil {
		return nil, err
	}

	return &BulkResult{
		Inserted:  inserted,
		BatchID:   uuid.New(),
		CreatedAt: now,
	}, nil
}
