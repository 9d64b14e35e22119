package chatwoot

import "strconv"

// Webhook payload shapes, limited to the fields the bridge extracts.
// Chatwoot sends differently-shaped payloads per event, so everything
// beyond the event name is optional.

type WebhookSender struct {
	ID   *int64 `json:"id"`
	Type string `json:"type"`
}

type WebhookAssignee struct {
	ID int64 `json:"id"`
}

type WebhookMeta struct {
	Assignee *WebhookAssignee `json:"assignee"`
}

type WebhookConversation struct {
	ID      int64       `json:"id"`
	Status  Status      `json:"status"`
	InboxID *int64      `json:"inbox_id"`
	Meta    WebhookMeta `json:"meta"`
}

type WebhookMessage struct {
	ID           int64                `json:"id"`
	Content      string               `json:"content"`
	MessageType  string               `json:"message_type"`
	Conversation *WebhookConversation `json:"conversation"`
	Sender       WebhookSender        `json:"sender"`
}

type WebhookEvent struct {
	Event       string               `json:"event" validate:"required"`
	MessageType string               `json:"message_type"`
	Sender      *WebhookSender       `json:"sender"`
	Message     *WebhookMessage      `json:"message"`
	Conversation *WebhookConversation `json:"conversation"`
	Content     string               `json:"content"`
	EchoID      string               `json:"echo_id"`
}

func (e *WebhookEvent) conversation() *WebhookConversation {
	if e.Message != nil && e.Message.Conversation != nil {
		return e.Message.Conversation
	}
	return e.Conversation
}

// ConversationID extracts the Chatwoot conversation ID from either the
// nested message or the top-level conversation.
func (e *WebhookEvent) ConversationID() (int64, bool) {
	if conv := e.conversation(); conv != nil {
		return conv.ID, true
	}
	return 0, false
}

// ExternalID is the conversation ID in its stored string form.
func (e *WebhookEvent) ExternalID() (string, bool) {
	id, ok := e.ConversationID()
	if !ok {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

func (e *WebhookEvent) AssigneeID() *int64 {
	conv := e.conversation()
	if conv == nil || conv.Meta.Assignee == nil {
		return nil
	}
	id := conv.Meta.Assignee.ID
	return &id
}

func (e *WebhookEvent) Status() Status {
	if conv := e.conversation(); conv != nil && conv.Status != "" {
		return conv.Status
	}
	return StatusPending
}

func (e *WebhookEvent) SenderType() string {
	if e.Sender == nil {
		return ""
	}
	return e.Sender.Type
}

// Patch converts the extracted fields into a conversation patch.
// The assignee is always marked present: Chatwoot reports unassignment
// as a null assignee, which must clear the stored value.
func (e *WebhookEvent) Patch() ConversationPatch {
	status := e.Status()
	return ConversationPatch{
		Status:     &status,
		AssigneeID: SetInt64(e.AssigneeID()),
	}
}
