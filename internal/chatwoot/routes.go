package chatwoot

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/chatwoot-webhook", h.HandleWebhook)
	r.Post("/send-chatwoot-message", h.SendMessage)
	r.Post("/assign-team/{conversation_id}", h.AssignTeam)
	r.Post("/toggle-priority/{conversation_id}", h.TogglePriority)
	r.Post("/toggle-status/{conversation_id}", h.ToggleStatus)
	r.Post("/update-labels/{conversation_id}", h.UpdateLabels)
	r.Post("/update-custom-attributes/{conversation_id}", h.UpdateCustomAttributes)
	r.Post("/refresh-teams", h.RefreshTeams)
	r.Get("/dialogue-info/{chatwoot_conversation_id}", h.ConversationInfo)
	r.Get("/conversations/ai/{ai_conversation_id}", h.ConversationByAIID)
	r.Get("/health", h.Health)
}
