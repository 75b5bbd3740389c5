package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"species-catalog/internal/domain"
)

var (
	ErrSpeciesNotFound = errors.New("species not found")
)

// ListFilter narrows a species listing. Empty fields do not filter.
type ListFilter struct {
	Category string
	Query    string
}

// SpeciesRepository defines the interface for species data access
type SpeciesRepository interface {
	Create(ctx context.Context, species *domain.Species) error
	BulkCreate(ctx context.Context, species []*domain.Species) (int, error)
	Update(ctx context.Context, id int64, patch *domain.SpeciesPatch, nowMillis int64) (*domain.Species, error)
	Delete(ctx context.Context, id int64) (*domain.Species, error)
	FindByID(ctx context.Context, id int64) (*domain.Species, error)
	List(ctx context.Context, filter ListFilter, page, pageSize int) ([]*domain.Species, int, error)
}

type speciesRepository struct {
	db *sql.DB
}

// NewSpeciesRepository creates a new instance of SpeciesRepository
func NewSpeciesRepository(db *sql.DB) SpeciesRepository {
	return &speciesRepository{db: db}
}

// speciesColumns is the select list shared by every query returning rows.
// The descriptive columns follow domain.Agronomy.Fields order.
var speciesColumns = strings.Join(append(append(
	[]string{"id", "category", "common_name", "scientific_name", "family", "tags"},
	agronomyColumns()...),
	"image_url", "language", "created_at", "updated_at"), ", ")

// insertColumns omits id, which the store assigns
var insertColumns = strings.Join(append(append(
	[]string{"category", "common_name", "scientific_name", "family", "tags"},
	agronomyColumns()...),
	"image_url", "language", "created_at", "updated_at"), ", ")

func agronomyColumns() []string {
	var a domain.Agronomy
	fields := a.Fields()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = quoteColumn(f.Column)
	}
	return columns
}

// quoteColumn quotes names that collide with SQL keywords
func quoteColumn(column string) string {
	if column == "yield" {
		return `"yield"`
	}
	return column
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpecies(row rowScanner) (*domain.Species, error) {
	species := &domain.Species{}
	var category string
	var tags sql.NullString

	dest := []interface{}{
		&species.ID,
		&category,
		&species.CommonName,
		&species.ScientificName,
		&species.Family,
		&tags,
	}
	for _, f := range species.Agronomy.Fields() {
		dest = append(dest, f.Value)
	}
	dest = append(dest,
		&species.ImageURL,
		&species.Language,
		&species.CreatedAt,
		&species.UpdatedAt,
	)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	species.Category = domain.Category(category)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &species.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of species %d: %w", species.ID, err)
		}
	}

	return species, nil
}

// tagsText is the serialized form of tags searched by List. &, < and >
// are kept literal so queries containing them can match.
func tagsText(tags []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// encodeTags serializes tags to the JSON text stored in the tags column
func encodeTags(tags []string) (interface{}, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := tagsText(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	return raw, nil
}

// pageOffset returns the row offset of a 1-based page, saturating at
// math.MaxInt for pages far past any data
func pageOffset(page, pageSize int) int {
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// insertArgs returns the values for insertColumns
func insertArgs(species *domain.Species) ([]interface{}, error) {
	tags, err := encodeTags(species.Tags)
	if err != nil {
		return nil, err
	}

	args := []interface{}{
		string(species.Category),
		species.CommonName,
		species.ScientificName,
		species.Family,
		tags,
	}
	for _, f := range species.Agronomy.Fields() {
		args = append(args, *f.Value)
	}
	args = append(args,
		species.ImageURL,
		species.Language,
		species.CreatedAt,
		species.UpdatedAt,
	)

	return args, nil
}

func insertQuery() string {
	n := strings.Count(insertColumns, ",") + 1
	return fmt.Sprintf(`INSERT INTO species (%s) VALUES (%s) RETURNING %s`,
		insertColumns, placeholders(1, n), speciesColumns)
}

// Create inserts a new species and fills in the store-assigned id
func (r *speciesRepository) Create(ctx context.Context, species *domain.Species) error {
	args, err := insertArgs(species)
	if err != nil {
		return err
	}

	created, err := scanSpecies(r.db.QueryRowContext(ctx, insertQuery(), args...))
	if err != nil {
		return fmt.Errorf("failed to create species: %w", err)
	}

	*species = *created
	return nil
}

// BulkCreate inserts all rows in a single transaction. Either every row is
// persisted or none is.
func (r *speciesRepository) BulkCreate(ctx context.Context, species []*domain.Species) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bulk insert: %w", err)
	}
	defer tx.Rollback()

	n := strings.Count(insertColumns, ",") + 1
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO species (%s) VALUES (%s)`,
		insertColumns, placeholders(1, n)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range species {
		args, err := insertArgs(s)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i+1, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert item %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk insert: %w", err)
	}

	return len(species), nil
}

// Update merges the patch into the stored row under a row lock. updated_at
// moves to nowMillis, or one past its previous value if the clock has not
// advanced, so every successful update is observable.
func (r *speciesRepository) Update(ctx context.Context, id int64, patch *domain.SpeciesPatch, nowMillis int64) (*domain.Species, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update: %w", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(`SELECT %s FROM species WHERE id = $1 FOR UPDATE`, speciesColumns)
	species, err := scanSpecies(tx.QueryRowContext(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpeciesNotFound
		}
		return nil, fmt.Errorf("failed to load species for update: %w", err)
	}

	patch.Apply(species)
	species.UpdatedAt = max(nowMillis, species.UpdatedAt+1)

	values, err := insertArgs(species)
	if err != nil {
		return nil, err
	}

	// created_at is never rewritten
	columns := strings.Split(insertColumns, ", ")
	sets := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(values))
	for i, column := range columns {
		if column == "created_at" {
			continue
		}
		args = append(args, values[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, id)

	updateQuery := fmt.Sprintf(`UPDATE species SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), speciesColumns)

	updated, err := scanSpecies(tx.QueryRowContext(ctx, updateQuery, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpeciesNotFound
		}
		return nil, fmt.Errorf("failed to update species: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	return updated, nil
}

// Delete removes a species and returns the row as it was before deletion
func (r *speciesRepository) Delete(ctx context.Context, id int64) (*domain.Species, error) {
	query := fmt.Sprintf(`DELETE FROM species WHERE id = $1 RETURNING %s`, speciesColumns)

	deleted, err := scanSpecies(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpeciesNotFound
		}
		return nil, fmt.Errorf("failed to delete species: %w", err)
	}

	return deleted, nil
}

// FindByID retrieves a species by ID
func (r *speciesRepository) FindByID(ctx context.Context, id int64) (*domain.Species, error) {
	query := fmt.Sprintf(`SELECT %s FROM species WHERE id = $1`, speciesColumns)

	species, err := scanSpecies(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpeciesNotFound
		}
		return nil, fmt.Errorf("failed to find species by ID: %w", err)
	}

	return species, nil
}

// List retrieves species matching the filter, ordered by id, together with
// the total number of matches ignoring pagination.
//
// Query matching is a case-sensitive substring test against common_name,
// scientific_name and the serialized tags text. strpos is used instead of
// LIKE so that % and _ in the query match literally.
func (r *speciesRepository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]*domain.Species, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(strpos(common_name, $%[1]d) > 0 OR strpos(scientific_name, $%[1]d) > 0 OR strpos(COALESCE(tags, ''), $%[1]d) > 0)",
			argIndex))
		args = append(args, filter.Query)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM species %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count species: %w", err)
	}

	offset := pageOffset(page, pageSize)

	query := fmt.Sprintf(`
		SELECT %s
		FROM species
		%s
		ORDER BY id ASC
		LIMIT $%d OFFSET $%d
	`, speciesColumns, whereClause, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list species: %w", err)
	}
	defer rows.Close()

	species := []*domain.Species{}
	for rows.Next() {
		s, err := scanSpecies(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan species: %w", err)
		}
		species = append(species, s)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating species: %w", err)
	}

	return species, total, nil
}
