package chatwoot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/api/response"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/remote"
	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

// Pinger is what the health endpoint needs from the database handle.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	svc      Service
	db       Pinger
	log      *slog.Logger
	validate *validator.Validate
}

func NewHandler(svc Service, db Pinger, log *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		log:      log.With(sl.Module("http.handler")),
		validate: validator.New(),
	}
}

func (h *Handler) logger(r *http.Request) *slog.Logger {
	return h.log.With(slog.String("request_id", middleware.GetReqID(r.Context())))
}

// respondErr maps the error taxonomy onto HTTP status codes.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	log := h.logger(r)

	var verr *ValidationError
	var tnf *TeamNotFoundError
	switch {
	case errors.As(err, &verr):
		log.Warn("bad request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
	case errors.As(err, &tnf), errors.Is(err, ErrNotFound):
		log.Warn("not found", sl.Err(err))
		render.Status(r, http.StatusNotFound)
	case remote.IsUnavailable(err):
		log.Error("remote unavailable", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
	default:
		log.Error("request failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, response.Error(err.Error()))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid json"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return false
	}
	return true
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "conversation_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid conversation_id"))
		return 0, false
	}
	return id, true
}

// HandleWebhook is the Chatwoot entry point. Chatwoot does not wait for
// an answer, so heavy work is dispatched and the request ACKed.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev WebhookEvent
	if !h.decode(w, r, &ev) {
		return
	}

	result, err := h.svc.HandleWebhook(r.Context(), &ev)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

type sendMessageRequest struct {
	ConversationID int64  `json:"conversation_id" validate:"required"`
	Message        string `json:"message" validate:"required"`
	Private        bool   `json:"is_private"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.SendMessage(r.Context(), req.ConversationID, req.Message, req.Private); err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{"message": "Message sent successfully"}))
}

type assignTeamRequest struct {
	Team string `json:"team" validate:"required"`
}

func (h *Handler) AssignTeam(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req assignTeamRequest
	if !h.decode(w, r, &req) {
		return
	}

	if strings.EqualFold(req.Team, "none") {
		render.JSON(w, r, response.Ok(map[string]any{
			"conversation_id": conversationID,
			"team":            "None",
		}))
		return
	}

	teamID, err := h.svc.AssignTeam(r.Context(), conversationID, req.Team)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"conversation_id": conversationID,
		"team":            req.Team,
		"team_id":         teamID,
	}))
}

type togglePriorityRequest struct {
	Priority Priority `json:"priority" validate:"required,oneof=urgent high medium low none"`
}

func (h *Handler) TogglePriority(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req togglePriorityRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Priority == PriorityNone {
		render.JSON(w, r, response.Ok(map[string]any{
			"conversation_id": conversationID,
			"priority":        "None",
		}))
		return
	}

	if err := h.svc.TogglePriority(r.Context(), conversationID, req.Priority); err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"conversation_id": conversationID,
		"priority":        req.Priority,
	}))
}

type toggleStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=open resolved pending"`
}

func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req toggleStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.ToggleStatus(r.Context(), conversationID, req.Status); err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"conversation_id": conversationID,
		"result":          req.Status,
	}))
}

func (h *Handler) UpdateLabels(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var labels []string
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid json"))
		return
	}

	if err := h.svc.UpdateLabels(r.Context(), conversationID, labels); err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"conversation_id": conversationID,
		"labels":          labels,
	}))
}

func (h *Handler) UpdateCustomAttributes(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid json"))
		return
	}

	if len(attrs) == 0 {
		render.JSON(w, r, response.Ok(map[string]any{
			"conversation_id":   conversationID,
			"custom_attributes": "No custom attrs provided",
		}))
		return
	}

	if err := h.svc.UpdateCustomAttributes(r.Context(), conversationID, attrs); err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"conversation_id":   conversationID,
		"custom_attributes": attrs,
	}))
}

func (h *Handler) RefreshTeams(w http.ResponseWriter, r *http.Request) {
	teams, cacheEnabled, err := h.svc.RefreshTeams(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{
		"teams":         teams,
		"cache_enabled": cacheEnabled,
	}))
}

type conversationInfo struct {
	ChatwootConversationID string  `json:"chatwoot_conversation_id"`
	AIConversationID       *string `json:"ai_conversation_id"`
	Status                 Status  `json:"status"`
	AssigneeID             *int64  `json:"assignee_id"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
}

func recordInfo(rec *ConversationRecord) conversationInfo {
	return conversationInfo{
		ChatwootConversationID: rec.ChatwootConversationID,
		AIConversationID:       rec.AIConversationID,
		Status:                 rec.Status,
		AssigneeID:             rec.AssigneeID,
		CreatedAt:              rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:              rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) ConversationInfo(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "chatwoot_conversation_id")

	rec, err := h.svc.ConversationInfo(r.Context(), externalID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(recordInfo(rec)))
}

func (h *Handler) ConversationByAIID(w http.ResponseWriter, r *http.Request) {
	aiID := chi.URLParam(r, "ai_conversation_id")

	rec, err := h.svc.ConversationByAIID(r.Context(), aiID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, response.Ok(recordInfo(rec)))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger(r).Error("health check failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("database unreachable"))
		return
	}
	render.JSON(w, r, response.Ok(map[string]any{"database": "connected"}))
}
