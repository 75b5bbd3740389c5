package domain

import "strings"

// Category is the coarse classification of a species entry
type Category string

const (
	CategoryCrop  Category = "crop"
	CategoryPlant Category = "plant"
	CategoryTree  Category = "tree"
)

// Categories lists every accepted category in display order
var Categories = []Category{CategoryCrop, CategoryPlant, CategoryTree}

// CategoryList renders Categories for error messages, e.g. "crop, plant, tree"
func CategoryList() string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryCrop, CategoryPlant, CategoryTree:
		return true
	}
	return false
}

// DefaultLanguage is stored when a payload omits the language
const DefaultLanguage = "en"

// OwnershipKeys may never appear in a client payload. Species carry no
// ownership or authorship attribution.
var OwnershipKeys = []string{"userId", "user_id", "authorId"}

// Agronomy holds the optional free-text descriptive fields of a species.
// A nil field is absent (NULL in the store).
type Agronomy struct {
	GrowthHabit    *string `json:"growthHabit"`
	Lifecycle      *string `json:"lifecycle"`
	Climate        *string `json:"climate"`
	Region         *string `json:"region"`
	Soil           *string `json:"soil"`
	Water          *string `json:"water"`
	Sunlight       *string `json:"sunlight"`
	Spacing        *string `json:"spacing"`
	SowingPlanting *string `json:"sowingPlanting"`
	Fertilization  *string `json:"fertilization"`
	Pests          *string `json:"pests"`
	Diseases       *string `json:"diseases"`
	Management     *string `json:"management"`
	Harvest        *string `json:"harvest"`
	Yield          *string `json:"yield"`
	Seasonality    *string `json:"seasonality"`
	Uses           *string `json:"uses"`
}

// Species represents one crop, plant or tree in the catalog.
// Timestamps are epoch milliseconds.
type Species struct {
	ID             int64    `json:"id" db:"id"`
	Category       Category `json:"category" db:"category"`
	CommonName     string   `json:"commonName" db:"common_name"`
	ScientificName string   `json:"scientificName" db:"scientific_name"`
	Family         string   `json:"family" db:"family"`
	Tags           []string `json:"tags" db:"tags"`
	Agronomy
	ImageURL  *string `json:"imageUrl" db:"image_url"`
	Language  string  `json:"language" db:"language"`
	CreatedAt int64   `json:"createdAt" db:"created_at"`
	UpdatedAt int64   `json:"updatedAt" db:"updated_at"`
}

// SpeciesInput is the create payload. It has no id or timestamp fields, so
// client-supplied values for them are dropped while decoding.
type SpeciesInput struct {
	Category       string   `json:"category"`
	CommonName     string   `json:"commonName"`
	ScientificName string   `json:"scientificName"`
	Family         string   `json:"family"`
	Tags           []string `json:"tags"`
	Agronomy
	ImageURL *string `json:"imageUrl"`
	Language string  `json:"language"`
}

// SpeciesPatch is a partial update. Only non-nil fields are written.
type SpeciesPatch struct {
	Category       *string  `json:"category"`
	CommonName     *string  `json:"commonName" validate:"omitnil,min=1"`
	ScientificName *string  `json:"scientificName" validate:"omitnil,min=1"`
	Family         *string  `json:"family" validate:"omitnil,min=1"`
	Tags           []string `json:"tags"`
	Agronomy
	ImageURL *string `json:"imageUrl" validate:"omitnil,url"`
	Language *string `json:"language"`
}

// NewSpecies builds a row from a validated input, stamping both timestamps
// with the same instant and defaulting the language.
func NewSpecies(in *SpeciesInput, nowMillis int64) *Species {
	language := in.Language
	if language == "" {
		language = DefaultLanguage
	}

	return &Species{
		Category:       Category(in.Category),
		CommonName:     in.CommonName,
		ScientificName: in.ScientificName,
		Family:         in.Family,
		Tags:           in.Tags,
		Agronomy:       in.Agronomy,
		ImageURL:       in.ImageURL,
		Language:       language,
		CreatedAt:      nowMillis,
		UpdatedAt:      nowMillis,
	}
}

// Apply merges the patch into s. It does not touch timestamps.
func (p *SpeciesPatch) Apply(s *Species) {
	if p.Category != nil {
		s.Category = Category(*p.Category)
	}
	if p.CommonName != nil {
		s.CommonName = *p.CommonName
	}
	if p.ScientificName != nil {
		s.ScientificName = *p.ScientificName
	}
	if p.Family != nil {
		s.Family = *p.Family
	}
	if p.Tags != nil {
		s.Tags = p.Tags
	}
	src, dst := p.Agronomy.Fields(), s.Agronomy.Fields()
	for i := range src {
		if *src[i].Value != nil {
			*dst[i].Value = *src[i].Value
		}
	}
	if p.ImageURL != nil {
		s.ImageURL = p.ImageURL
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
}

// AgronomyField binds a descriptive field to its column
type AgronomyField struct {
	Column string
	Value  **string
}

// Fields returns the descriptive fields in column order
func (a *Agronomy) Fields() []AgronomyField {
	return []AgronomyField{
		{"growth_habit", &a.GrowthHabit},
		{"lifecycle", &a.Lifecycle},
		{"climate", &a.Climate},
		{"region", &a.Region},
		{"soil", &a.Soil},
		{"water", &a.Water},
		{"sunlight", &a.Sunlight},
		{"spacing", &a.Spacing},
		{"sowing_planting", &a.SowingPlanting},
		{"fertilization", &a.Fertilization},
		{"pests", &a.Pests},
		{"diseases", &a.Diseases},
		{"management", &a.Management},
		{"harvest", &a.Harvest},
		{"yield", &a.Yield},
		{"seasonality", &a.Seasonality},
		{"uses", &a.Uses},
	}
}
