package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"testing"
	"time"

	"species-catalog/internal/database"
	"species-catalog/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := dbContainer.ConnectionString(context.Background(), "sslmode=disable")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if err := database.RunMigrations(testDB, zap.NewNop()); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Printf("postgres container unavailable, integration tests will be skipped: %v", err)
		testDB = nil
	}

	code := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Printf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(code)
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container not available")
	}
}

func strPtr(s string) *string { return &s }

func newTestSpecies(token string, category domain.Category, now int64) *domain.Species {
	return &domain.Species{
		Category:       category,
		CommonName:     "Common " + token,
		ScientificName: "Scientia " + token,
		Family:         "Testaceae",
		Language:       domain.DefaultLanguage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func cleanup(t *testing.T, token string) {
	t.Helper()
	_, _ = testDB.Exec("DELETE FROM species WHERE strpos(common_name, $1) > 0", token)
}

func TestProperty_SpeciesCreationPreservesAttributes(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("creating and retrieving a species preserves all attributes", prop.ForAll(
		func(commonName string, scientificName string, family string, tags []string, water string) bool {
			now := time.Now().UnixMilli()
			species := &domain.Species{
				Category:       domain.CategoryCrop,
				CommonName:     commonName,
				ScientificName: scientificName,
				Family:         family,
				Tags:           tags,
				Agronomy:       domain.Agronomy{Water: strPtr(water), Yield: strPtr("2 t/ha")},
				ImageURL:       strPtr("https://img.example/" + commonName + ".jpg"),
				Language:       "en",
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			if err := repo.Create(ctx, species); err != nil {
				t.Logf("FAIL: Failed to create species: %v", err)
				return false
			}
			defer repo.Delete(ctx, species.ID)

			if species.ID <= 0 {
				t.Logf("FAIL: store did not assign an id")
				return false
			}

			retrieved, err := repo.FindByID(ctx, species.ID)
			if err != nil {
				t.Logf("FAIL: Failed to retrieve species: %v", err)
				return false
			}

			if retrieved.CommonName != commonName || retrieved.ScientificName != scientificName || retrieved.Family != family {
				t.Logf("FAIL: names mismatch: %+v", retrieved)
				return false
			}
			if len(retrieved.Tags) != len(tags) {
				t.Logf("FAIL: tags mismatch. Expected %v, got %v", tags, retrieved.Tags)
				return false
			}
			for i := range tags {
				if retrieved.Tags[i] != tags[i] {
					return false
				}
			}
			if retrieved.Water == nil || *retrieved.Water != water {
				t.Logf("FAIL: water mismatch")
				return false
			}
			if retrieved.Yield == nil || *retrieved.Yield != "2 t/ha" {
				t.Logf("FAIL: yield mismatch")
				return false
			}
			if retrieved.Soil != nil {
				t.Logf("FAIL: absent field came back non-nil")
				return false
			}

			return retrieved.CreatedAt == now && retrieved.UpdatedAt == now
		},
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
		gen.RegexMatch(`[A-Z][a-z]{3,10} [a-z]{3,10}`),
		gen.RegexMatch(`[A-Z][a-z]{3,10}aceae`),
		gen.SliceOf(gen.AlphaString()),
		gen.OneConstOf("low", "medium", "high"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// For N matching rows and page size P the last page holds the remainder
// and total never changes between pages
func TestProperty_PaginationReturnsRemainderOnLastPage(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("pages partition the filtered rows", prop.ForAll(
		func(n int, pageSize int) bool {
			token := uuid.NewString()
			defer cleanup(t, token)

			rows := make([]*domain.Species, n)
			for i := range rows {
				rows[i] = newTestSpecies(fmt.Sprintf("%s-%03d", token, i), domain.CategoryPlant, 1)
			}
			if _, err := repo.BulkCreate(ctx, rows); err != nil {
				t.Logf("FAIL: bulk create: %v", err)
				return false
			}

			lastPage := (n + pageSize - 1) / pageSize
			var lastID int64
			seen := 0
			for page := 1; page <= lastPage+1; page++ {
				got, total, err := repo.List(ctx, ListFilter{Query: token}, page, pageSize)
				if err != nil {
					t.Logf("FAIL: list page %d: %v", page, err)
					return false
				}
				if total != n {
					t.Logf("FAIL: total %d on page %d, want %d", total, page, n)
					return false
				}

				want := pageSize
				switch {
				case page > lastPage:
					want = 0
				case page == lastPage && n%pageSize != 0:
					want = n % pageSize
				}
				if len(got) != want {
					t.Logf("FAIL: page %d has %d rows, want %d", page, len(got), want)
					return false
				}

				for _, s := range got {
					if s.ID <= lastID {
						t.Logf("FAIL: rows not in id order")
						return false
					}
					lastID = s.ID
					seen++
				}
			}

			return seen == n
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestListFiltersByCategoryAndQuery(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()
	token := uuid.NewString()
	defer cleanup(t, token)

	neem := newTestSpecies(token+" Neem", domain.CategoryTree, 1)
	neem.Tags = []string{"medicinal", "100%_organic", "fruit & nut", "<rabi>"}
	maize := newTestSpecies(token+" Maize", domain.CategoryCrop, 1)
	maize.ScientificName = "Zea mays"
	teak := newTestSpecies(token+" Teak", domain.CategoryTree, 1)

	_, err := repo.BulkCreate(ctx, []*domain.Species{neem, maize, teak})
	require.NoError(t, err)

	got, total, err := repo.List(ctx, ListFilter{Query: token, Category: "tree"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, neem.CommonName, got[0].CommonName)
	assert.Equal(t, teak.CommonName, got[1].CommonName)

	// scientific name match
	got, total, err = repo.List(ctx, ListFilter{Query: "Zea mays"}, 1, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	found := false
	for _, s := range got {
		found = found || s.CommonName == maize.CommonName
	}
	assert.True(t, found)

	// tags text match, wildcards are literal
	got, total, err = repo.List(ctx, ListFilter{Query: "100%_organic"}, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, neem.CommonName, got[0].CommonName)

	_, total, err = repo.List(ctx, ListFilter{Query: "1000organic"}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	// &, < and > are stored unescaped
	for _, q := range []string{"fruit & nut", "<rabi>"} {
		got, total, err = repo.List(ctx, ListFilter{Query: q}, 1, 100)
		require.NoError(t, err)
		require.Equal(t, 1, total, q)
		assert.Equal(t, neem.CommonName, got[0].CommonName)
	}

	// a page far past the data is empty, not an error
	got, total, err = repo.List(ctx, ListFilter{Query: token}, math.MaxInt, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, got)

	// matching is case sensitive
	_, total, err = repo.List(ctx, ListFilter{Query: "MEDICINAL"}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestBulkCreateIsAtomic(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()
	token := uuid.NewString()
	defer cleanup(t, token)

	rows := make([]*domain.Species, 0, 11)
	for i := 0; i < 10; i++ {
		rows = append(rows, newTestSpecies(fmt.Sprintf("%s-%d", token, i), domain.CategoryCrop, 5))
	}
	// violates the category check constraint
	rows = append(rows, newTestSpecies(token+"-bad", domain.Category("shrub"), 5))

	_, err := repo.BulkCreate(ctx, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 11")

	_, total, err := repo.List(ctx, ListFilter{Query: token}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, total, "no row of a failed batch may persist")
}

func TestUpdateIsPartialAndAdvancesUpdatedAt(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()
	token := uuid.NewString()
	defer cleanup(t, token)

	species := newTestSpecies(token, domain.CategoryTree, 1000)
	species.Soil = strPtr("sandy")
	require.NoError(t, repo.Create(ctx, species))

	// clock behind the stored value still moves updated_at forward
	updated, err := repo.Update(ctx, species.ID, &domain.SpeciesPatch{
		Agronomy: domain.Agronomy{Water: strPtr("low")},
		Tags:     []string{"drought"},
	}, 1000)
	require.NoError(t, err)

	require.NotNil(t, updated.Water)
	assert.Equal(t, "low", *updated.Water)
	require.NotNil(t, updated.Soil)
	assert.Equal(t, "sandy", *updated.Soil)
	assert.Equal(t, []string{"drought"}, updated.Tags)
	assert.Equal(t, species.CommonName, updated.CommonName)
	assert.Equal(t, int64(1000), updated.CreatedAt)
	assert.Equal(t, int64(1001), updated.UpdatedAt)

	updated, err = repo.Update(ctx, species.ID, &domain.SpeciesPatch{}, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), updated.UpdatedAt)

	_, err = repo.Update(ctx, -1, &domain.SpeciesPatch{}, 5000)
	assert.True(t, errors.Is(err, ErrSpeciesNotFound))
}

func TestDeleteReturnsPriorRow(t *testing.T) {
	requirePostgres(t)
	repo := NewSpeciesRepository(testDB)
	ctx := context.Background()
	token := uuid.NewString()
	defer cleanup(t, token)

	species := newTestSpecies(token, domain.CategoryPlant, 7)
	require.NoError(t, repo.Create(ctx, species))

	deleted, err := repo.Delete(ctx, species.ID)
	require.NoError(t, err)
	assert.Equal(t, species.ID, deleted.ID)
	assert.Equal(t, species.CommonName, deleted.CommonName)

	_, err = repo.Delete(ctx, species.ID)
	assert.ErrorIs(t, err, ErrSpeciesNotFound)

	_, err = repo.FindByID(ctx, species.ID)
	assert.ErrorIs(t, err, ErrSpeciesNotFound)
}
