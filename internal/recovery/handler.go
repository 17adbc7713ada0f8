package recovery

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/mahnwerk/mahnwerk/internal/platform/httpx"
)

// Handler exposes the payment-reminder cron trigger and the per-method
// settings admin API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	repo     RepositoryPort
	validate *validator.Validate
	sweeps   singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, repo RepositoryPort) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		repo:     repo,
		validate: validator.New(),
	}
}

// MountCron registers the scheduler-facing trigger route.
func (h *Handler) MountCron(r chi.Router) {
	r.Get("/payment-reminders", h.runSweep)
}

// MountAdmin registers the settings routes. The router mounts this
// under /api/orgs/{orgID}/recovery.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/settings/{kind}", h.getSettings)
	r.Put("/settings/{kind}", h.putSettings)
}

// runSweep triggers one recovery pass. Overlapping triggers on the same
// instance collapse into a single run; cross-instance overlap is
// handled by the unique constraint on the recovery log alone.
func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.sweeps.Do("recovery", func() (any, error) {
		return h.service.RunSweep(r.Context(), time.Now())
	})
	if err != nil {
		h.logger.Error("recovery sweep failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Internal Server Error",
		})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": result.(*SweepSummary),
	})
}

// settingsPayload is the admin API representation of a policy.
type settingsPayload struct {
	Enabled             bool   `json:"enabled"`
	Reminder1Days       int    `json:"reminder1Days" validate:"min=1,max=365"`
	Reminder2Days       int    `json:"reminder2Days" validate:"min=1,max=365"`
	CancellationDays    int    `json:"cancellationDays" validate:"min=1,max=365"`
	Reminder1Subject    string `json:"reminder1Subject" validate:"required,max=500"`
	Reminder1Text       string `json:"reminder1Text" validate:"required,max=10000"`
	Reminder2Subject    string `json:"reminder2Subject" validate:"required,max=500"`
	Reminder2Text       string `json:"reminder2Text" validate:"required,max=10000"`
	CancellationSubject string `json:"cancellationSubject" validate:"required,max=500"`
	CancellationText    string `json:"cancellationText" validate:"required,max=10000"`
}

func settingsToPayload(s Settings) settingsPayload {
	return settingsPayload{
		Enabled:             s.Enabled,
		Reminder1Days:       s.Reminder1Days,
		Reminder2Days:       s.Reminder2Days,
		CancellationDays:    s.CancellationDays,
		Reminder1Subject:    s.Reminder1Subject,
		Reminder1Text:       s.Reminder1Text,
		Reminder2Subject:    s.Reminder2Subject,
		Reminder2Text:       s.Reminder2Text,
		CancellationSubject: s.CancellationSubject,
		CancellationText:    s.CancellationText,
	}
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	settings, err := h.repo.GetSettings(r.Context(), orgID, kind)
	if err != nil {
		h.logger.Error("get recovery settings", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if settings == nil {
		httpx.JSON(w, http.StatusOK, settingsToPayload(DefaultSettings(orgID, kind)))
		return
	}
	httpx.JSON(w, http.StatusOK, settingsToPayload(*settings))
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	var payload settingsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if payload.Reminder2Days < payload.Reminder1Days || payload.CancellationDays < payload.Reminder2Days {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "day thresholds must be non-decreasing")
		return
	}

	settings := Settings{
		OrganizationID:      orgID,
		Kind:                kind,
		Enabled:             payload.Enabled,
		Reminder1Days:       payload.Reminder1Days,
		Reminder2Days:       payload.Reminder2Days,
		CancellationDays:    payload.CancellationDays,
		Reminder1Subject:    payload.Reminder1Subject,
		Reminder1Text:       payload.Reminder1Text,
		Reminder2Subject:    payload.Reminder2Subject,
		Reminder2Text:       payload.Reminder2Text,
		CancellationSubject: payload.CancellationSubject,
		CancellationText:    payload.CancellationText,
	}
	if err := h.repo.SaveSettings(r.Context(), settings); err != nil {
		h.logger.Error("save recovery settings", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settingsToPayload(settings))
}

func orgIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organization id")
		return 0, false
	}
	return orgID, true
}

func kindParam(w http.ResponseWriter, r *http.Request) (MethodKind, bool) {
	switch MethodKind(strings.ToUpper(chi.URLParam(r, "kind"))) {
	case KindVorkasse:
		return KindVorkasse, true
	case KindRechnung:
		return KindRechnung, true
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown payment method kind")
		return "", false
	}
}
