package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rewired-gh/spawnoracle/internal/api/respond"
	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

const maxAppearanceLimit = 100

type handler struct {
	engine Engine
	rules  bosses.CategoryRules
}

type bossEntry struct {
	models.BossConfig
	Estimate *models.SpawnEstimate `json:"estimate,omitempty"`
	Label    string                `json:"label,omitempty"`
}

type evaluationFailure struct {
	BossName string `json:"boss_name"`
	Error    string `json:"error"`
}

type bossesResponse struct {
	Bosses      []bossEntry         `json:"bosses"`
	Groups      []bosses.Group      `json:"groups"`
	Failures    []evaluationFailure `json:"failures,omitempty"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

type chanceResponse struct {
	models.SpawnEstimate
	Label       string    `json:"label"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

type configureRequest struct {
	MinDays *int `json:"min_days"`
	MaxDays *int `json:"max_days"`
}

type killRequest struct {
	At string `json:"at"`
}

type checkedRequest struct {
	Checker string `json:"checker"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.engine.Now().Format(time.RFC3339),
	})
}

// listBosses returns every configured boss with its current estimate. Raid
// categories are also reported folded into groups.
func (h *handler) listBosses(w http.ResponseWriter, r *http.Request) {
	configs, err := h.engine.Bosses(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	estimates, evalErrors, err := h.engine.ChanceAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	byName := make(map[string]models.SpawnEstimate, len(estimates))
	for _, est := range estimates {
		byName[est.BossName] = est
	}

	precision := h.engine.Precision()
	resp := bossesResponse{
		Bosses:      make([]bossEntry, 0, len(configs)),
		EvaluatedAt: h.engine.Now(),
	}
	for _, cfg := range configs {
		entry := bossEntry{BossConfig: cfg}
		if est, ok := byName[cfg.BossName]; ok {
			entry.Estimate = &est
			entry.Label = est.Label(precision)
		}
		resp.Bosses = append(resp.Bosses, entry)
	}
	_, resp.Groups = bosses.SeparateByCategory(estimates, h.rules)
	for _, e := range evalErrors {
		resp.Failures = append(resp.Failures, evaluationFailure{BossName: e.BossName, Error: e.Err.Error()})
	}

	respond.WriteJSONObject(w, http.StatusOK, resp)
}

func (h *handler) getChance(w http.ResponseWriter, r *http.Request) {
	est, err := h.engine.GetChance(r.Context(), bossName(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, chanceResponse{
		SpawnEstimate: est,
		Label:         est.Label(h.engine.Precision()),
		EvaluatedAt:   h.engine.Now(),
	})
}

func (h *handler) listAppearances(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAppearanceLimit {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT",
				"limit must be an integer between 1 and "+strconv.Itoa(maxAppearanceLimit))
			return
		}
		limit = n
	}

	list, err := h.engine.LastAppearances(r.Context(), bossName(r), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if list == nil {
		list = []models.Appearance{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"appearances": list})
}

func (h *handler) configureBoss(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MinDays == nil || req.MaxDays == nil {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "min_days and max_days are required")
		return
	}

	cfg, err := h.engine.ConfigureBoss(r.Context(), bossName(r), *req.MinDays, *req.MaxDays)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, cfg)
}

func (h *handler) purgeBoss(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.PurgeBoss(r.Context(), bossName(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteNoContent(w)
}

func (h *handler) recordKill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := h.engine.ParseKillTime(req.At)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	a, err := h.engine.RecordKill(r.Context(), bossName(r), at)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, a)
}

func (h *handler) revertKill(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.RevertLastKill(r.Context(), bossName(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, a)
}

func (h *handler) markChecked(w http.ResponseWriter, r *http.Request) {
	var req checkedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Checker == "" {
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", "checker is required")
		return
	}
	if err := h.engine.MarkChecked(r.Context(), bossName(r), req.Checker); err != nil {
		writeEngineError(w, err)
		return
	}
	respond.WriteNoContent(w)
}

// bossName returns the decoded {name} path parameter
func bossName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
// Writes a 400 and returns false on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", err.Error())
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	case errors.Is(err, models.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		logger.Error("API request failed: %v", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
	}
}
