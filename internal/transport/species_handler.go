package transport

import (
	"errors"
	"io"
	"net/http"

	"species-catalog/internal/domain"
	"species-catalog/internal/middleware"
	"species-catalog/internal/repository"
	"species-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CodeNotFound is returned when the addressed species does not exist
const CodeNotFound = "NOT_FOUND"

// maxBodyBytes bounds request bodies. A full bulk batch fits comfortably.
const maxBodyBytes = 8 << 20

// DeleteResponse represents the delete response
type DeleteResponse struct {
	Message string          `json:"message"`
	Deleted *domain.Species `json:"deleted"`
}

// SpeciesHandler handles HTTP requests for species operations
type SpeciesHandler struct {
	speciesService service.SpeciesService
	logger         *zap.Logger
}

// NewSpeciesHandler creates a new SpeciesHandler
func NewSpeciesHandler(speciesService service.SpeciesService, logger *zap.Logger) *SpeciesHandler {
	return &SpeciesHandler{
		speciesService: speciesService,
		logger:         logger,
	}
}

// RegisterRoutes registers all species routes. writeMiddleware wraps the
// mutating routes only.
func (h *SpeciesHandler) RegisterRoutes(r chi.Router, writeMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/api/species", func(r chi.Router) {
		// Read routes
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		// Mutating routes
		r.Group(func(r chi.Router) {
			r.Use(writeMiddleware...)
			r.Post("/", h.Create)
			r.Post("/bulk", h.BulkCreate)

			// The id comes from the path or from ?id=
			r.Put("/", h.Update)
			r.Put("/{id}", h.Update)
			r.Delete("/", h.Delete)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// speciesID reads the id from the path, falling back to the query string
func speciesID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	return service.ParseID(raw)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &service.ValidationError{Code: service.CodeInvalidBody, Message: "Invalid JSON body"}
	}
	return body, nil
}

// respondError maps service and repository errors to HTTP responses
func (h *SpeciesHandler) respondError(w http.ResponseWriter, r *http.Request, err error, fields ...zap.Field) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Debug("Species request invalid",
			append(fields, zap.String("code", verr.Code), zap.String("error", verr.Message))...)
		if len(verr.Details) > 0 {
			middleware.RespondWithErrorDetails(w, http.StatusBadRequest, verr.Code, verr.Message, verr.Details)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, verr.Code, verr.Message)

	case errors.Is(err, repository.ErrSpeciesNotFound):
		h.logger.Debug("Species not found", fields...)
		middleware.RespondWithError(w, http.StatusNotFound, CodeNotFound, "Species not found")

	default:
		h.logger.Error("Species request failed",
			append(fields, zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))...)
		middleware.RespondWithError(w, http.StatusInternalServerError, middleware.CodeInternalError,
			"Internal server error: "+err.Error())
	}
}

// List handles paginated search
func (h *SpeciesHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.speciesService.List(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// Get handles retrieval of a single species
func (h *SpeciesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := speciesID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	species, err := h.speciesService.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, zap.Int64("species_id", id))
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, species)
}

// Create handles species creation
func (h *SpeciesHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	in, err := service.DecodeInput(body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	species, err := h.speciesService.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Info("Species created",
		zap.Int64("species_id", species.ID),
		zap.String("category", string(species.Category)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, species)
}

// Update handles partial updates addressed by path or query id
func (h *SpeciesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := speciesID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		h.respondError(w, r, err, zap.Int64("species_id", id))
		return
	}

	patch, err := service.DecodePatch(body)
	if err != nil {
		h.respondError(w, r, err, zap.Int64("species_id", id))
		return
	}

	species, err := h.speciesService.Update(r.Context(), id, patch)
	if err != nil {
		h.respondError(w, r, err, zap.Int64("species_id", id))
		return
	}

	h.logger.Info("Species updated", zap.Int64("species_id", id))
	middleware.RespondWithJSON(w, http.StatusOK, species)
}

// Delete handles hard deletes addressed by path or query id
func (h *SpeciesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := speciesID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	species, err := h.speciesService.Delete(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, zap.Int64("species_id", id))
		return
	}

	h.logger.Info("Species deleted", zap.Int64("species_id", id))
	middleware.RespondWithJSON(w, http.StatusOK, DeleteResponse{
		Message: "Species deleted successfully",
		Deleted: species,
	})
}

// BulkCreate handles transactional batch inserts
func (h *SpeciesHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	items, err := service.DecodeBulkRequest(body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.speciesService.BulkCreate(r.Context(), items)
	if err != nil {
		h.respondError(w, r, err, zap.Int("items", len(items)))
		return
	}

	// batch_id correlates bulk inserts across the API and seed command logs
	h.logger.Info("Species bulk inserted",
		zap.String("batch_id", result.BatchID.String()),
		zap.Int("inserted", result.Inserted),
		zap.Int64("created_at", result.CreatedAt),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, result)
}
