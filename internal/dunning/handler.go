package dunning

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mahnwerk/mahnwerk/internal/platform/httpx"
)

// Handler exposes the dunning cron trigger and the settings/template
// admin API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	repo     RepositoryPort
	cache    *TemplateCache
	validate *validator.Validate
	sweeps   singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, repo RepositoryPort, cache *TemplateCache) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		repo:     repo,
		cache:    cache,
		validate: validator.New(),
	}
}

// MountCron registers the scheduler-facing trigger route.
func (h *Handler) MountCron(r chi.Router) {
	r.Get("/dunning", h.runSweep)
}

// MountAdmin registers settings and template routes. The router mounts
// this under /api/orgs/{orgID}/dunning.
func (h *Handler) MountAdmin(r chi.Router) {
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.putSettings)
	r.Get("/templates/{level}", h.getTemplate)
	r.Put("/templates/{level}", h.putTemplate)
}

// runSweep triggers one dunning pass. Overlapping triggers on the same
// instance collapse into a single run; cross-instance overlap is handled
// by the unique constraint on the dunning log alone.
func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.sweeps.Do("dunning", func() (any, error) {
		return h.service.RunSweep(r.Context(), time.Now())
	})
	if err != nil {
		h.logger.Error("dunning sweep failed", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Internal Server Error",
		})
		return
	}
	summary := result.(*SweepSummary)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"runId":     summary.RunID,
		"processed": summary.Results,
	})
}

// settingsPayload is the admin API representation of a policy.
type settingsPayload struct {
	Enabled           bool            `json:"enabled"`
	ReminderDays      int             `json:"reminderDays" validate:"min=0,max=365"`
	Warning1Days      int             `json:"warning1Days" validate:"min=1,max=365"`
	Warning2Days      int             `json:"warning2Days" validate:"min=1,max=365"`
	FinalDays         int             `json:"finalDays" validate:"min=1,max=365"`
	Warning1Surcharge decimal.Decimal `json:"warning1Surcharge"`
	Warning2Surcharge decimal.Decimal `json:"warning2Surcharge"`
	FinalSurcharge    decimal.Decimal `json:"finalSurcharge"`
}

func settingsToPayload(s Settings) settingsPayload {
	return settingsPayload{
		Enabled:           s.Enabled,
		ReminderDays:      s.ReminderDays,
		Warning1Days:      s.Warning1Days,
		Warning2Days:      s.Warning2Days,
		FinalDays:         s.FinalDays,
		Warning1Surcharge: s.Warning1Surcharge,
		Warning2Surcharge: s.Warning2Surcharge,
		FinalSurcharge:    s.FinalSurcharge,
	}
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	settings, err := h.repo.GetSettings(r.Context(), orgID)
	if err != nil {
		h.logger.Error("get dunning settings", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if settings == nil {
		// Unconfigured organizations see the built-in policy as a
		// starting point, but dunning stays off until they opt in.
		defaults := DefaultSettings(orgID)
		defaults.Enabled = false
		httpx.JSON(w, http.StatusOK, settingsToPayload(defaults))
		return
	}
	httpx.JSON(w, http.StatusOK, settingsToPayload(*settings))
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
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
	for _, pct := range []decimal.Decimal{payload.Warning1Surcharge, payload.Warning2Surcharge, payload.FinalSurcharge} {
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "surcharge percent must be between 0 and 100")
			return
		}
	}

	settings := Settings{
		OrganizationID:    orgID,
		Enabled:           payload.Enabled,
		ReminderDays:      payload.ReminderDays,
		Warning1Days:      payload.Warning1Days,
		Warning2Days:      payload.Warning2Days,
		FinalDays:         payload.FinalDays,
		Warning1Surcharge: payload.Warning1Surcharge,
		Warning2Surcharge: payload.Warning2Surcharge,
		FinalSurcharge:    payload.FinalSurcharge,
	}
	if err := h.repo.SaveSettings(r.Context(), settings); err != nil {
		h.logger.Error("save dunning settings", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settingsToPayload(settings))
}

// templatePayload is the admin API representation of a stage template.
type templatePayload struct {
	Level   string `json:"level"`
	Subject string `json:"subject" validate:"required,max=500"`
	Content string `json:"content" validate:"required,max=10000"`
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	level, ok := levelParam(w, r)
	if !ok {
		return
	}
	tpl, err := h.repo.GetTemplate(r.Context(), orgID, level)
	if err != nil {
		h.logger.Error("get dunning template", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if tpl == nil {
		def := DefaultTemplate(level)
		httpx.JSON(w, http.StatusOK, templatePayload{Level: string(level), Subject: def.Subject, Content: def.Content})
		return
	}
	httpx.JSON(w, http.StatusOK, templatePayload{Level: string(tpl.Level), Subject: tpl.Subject, Content: tpl.Content})
}

func (h *Handler) putTemplate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	level, ok := levelParam(w, r)
	if !ok {
		return
	}
	var payload templatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tpl := Template{OrganizationID: orgID, Level: level, Subject: payload.Subject, Content: payload.Content}
	if err := h.repo.SaveTemplate(r.Context(), tpl); err != nil {
		h.logger.Error("save dunning template", slog.Int64("organization_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.cache.Invalidate(r.Context(), orgID, level)
	httpx.JSON(w, http.StatusOK, templatePayload{Level: string(level), Subject: tpl.Subject, Content: tpl.Content})
}

func orgIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organization id")
		return 0, false
	}
	return orgID, true
}

func levelParam(w http.ResponseWriter, r *http.Request) (Level, bool) {
	name := chi.URLParam(r, "level")
	if !ValidLevel(name) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown dunning level")
		return "", false
	}
	return Level(name), true
}
