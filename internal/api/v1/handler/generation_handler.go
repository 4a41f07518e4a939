package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 10

// GenerationHandler handles copy-generation and usage endpoints.
type GenerationHandler struct {
	generationSvc service.GenerationService
	validate      *validator.Validate
	logger        zerolog.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(generationSvc service.GenerationService, v *validator.Validate, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{generationSvc: generationSvc, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 generation routes
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/generations", authMw(http.HandlerFunc(h.handleGenerations)))
	mux.Handle("/usage", authMw(http.HandlerFunc(h.getUsage)))
}

func (h *GenerationHandler) handleGenerations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.generate(w, r)
	case http.MethodGet:
		h.listGenerations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// generate godoc
// @Summary Generate SEO product copy
// @Description Generates Markdown product copy for a title and keyword list, metered by the daily free-tier quota.
// @Tags generations
// @Accept json
// @Produce json
// @Param generation body dto.GenerateRequest true "Product title and keywords"
// @Success 200 {object} dto.GenerateResponse
// @Failure 400 {object} map[string]string "invalid input"
// @Failure 401 {object} map[string]string "unauthorized"
// @Failure 403 {object} map[string]string "daily limit reached"
// @Failure 500 {object} map[string]string "generation failed"
// @Router /generations [post]
func (h *GenerationHandler) generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: user ID not found in context")
		return
	}

	var req dto.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	generation, err := h.generationSvc.Generate(r.Context(), userID, req.Title, req.Keywords)
	if err != nil {
		var quotaErr *service.QuotaExceededError
		switch {
		case errors.Is(err, service.ErrMissingTitle), errors.Is(err, service.ErrMissingKeywords):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &quotaErr):
			writeError(w, http.StatusForbidden, quotaErr.Error())
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to generate copy")
			writeError(w, http.StatusInternalServerError, "Failed to generate copy")
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.GenerateResponse{OutputMarkdown: generation.OutputMarkdown})
}

// listGenerations godoc
// @Summary List recent generations
// @Description Returns the user's generations, most recent first.
// @Tags generations
// @Produce json
// @Param limit query int false "Maximum entries to return" default(10)
// @Success 200 {array} dto.GenerationResponseDTO
// @Failure 401 {object} map[string]string "unauthorized"
// @Router /generations [get]
func (h *GenerationHandler) listGenerations(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: user ID not found in context")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	generations, err := h.generationSvc.ListRecent(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list generations")
		return
	}

	resp := make([]dto.GenerationResponseDTO, 0, len(generations))
	for _, g := range generations {
		resp = append(resp, dto.GenerationResponseDTO{
			ID:             g.ID,
			ProductTitle:   g.ProductTitle,
			Keywords:       g.Keywords,
			OutputMarkdown: g.OutputMarkdown,
			CreatedAt:      g.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// getUsage godoc
// @Summary Get plan and usage summary
// @Description Returns the user's plan and today's generation count.
// @Tags generations
// @Produce json
// @Success 200 {object} dto.UsageResponseDTO
// @Failure 401 {object} map[string]string "unauthorized"
// @Router /usage [get]
func (h *GenerationHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized: user ID not found in context")
		return
	}

	usage, err := h.generationSvc.Usage(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, dto.UsageResponseDTO{
		IsPro:      usage.IsPro,
		TodayCount: usage.TodayCount,
		DailyLimit: usage.DailyLimit,
	})
}
