package callback

import "github.com/groupize/aime-planner-chatbot/internal/conversation"

type questionPayload struct {
	ID       conversation.QuestionID `json:"id"`
	Text     string                  `json:"text"`
	Answer   *string                 `json:"answer"`
	Answered bool                    `json:"answered"`
	Required bool                    `json:"required"`
}

type startedPayload struct {
	ConversationID   string         `json:"conversation_id"`
	VendorEmail      string         `json:"vendor_email"`
	InitialEmailSent bool           `json:"initial_email_sent"`
	Timestamp        string         `json:"timestamp"`
	CallbackData     map[string]any `json:"callback_data,omitempty"`
}

type updatePayload struct {
	ConversationID    string            `json:"conversation_id"`
	Status            string            `json:"status"`
	QuestionsAnswered []questionPayload `json:"questions_answered"`
	IsFinal           bool              `json:"is_final"`
	Timestamp         string            `json:"timestamp"`
	RawEmailContent   string            `json:"raw_email_content,omitempty"`
	AttemptCount      int               `json:"attempt_count"`
	CallbackData      map[string]any    `json:"callback_data,omitempty"`
}

type completedPayload struct {
	ConversationID string            `json:"conversation_id"`
	FinalStatus    string            `json:"final_status"`
	AllAnswers     []questionPayload `json:"all_answers"`
	AttemptCount   int               `json:"attempt_count"`
	CompletedAt    string            `json:"completed_at"`
	CallbackData   map[string]any    `json:"callback_data,omitempty"`
}

type errorPayload struct {
	ConversationID string         `json:"conversation_id"`
	ErrorType      string         `json:"error_type"`
	ErrorMessage   string         `json:"error_message"`
	Context        map[string]any `json:"context"`
	Timestamp      string         `json:"timestamp"`
}

func formatQuestions(qs []conversation.Question) []questionPayload {
	out := make([]questionPayload, len(qs))
	for i, q := range qs {
		out[i] = questionPayload{
			ID:       q.ID,
			Text:     q.Text,
			Answer:   q.Answer,
			Answered: q.Answered,
			Required: q.Required,
		}
	}
	return out
}
