package conversation

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// InitiateRequest is the payload that opens a negotiation.
type InitiateRequest struct {
	EventMetadata EventMetadata  `json:"event_metadata"`
	VendorInfo    VendorInfo     `json:"vendor_info"`
	Questions     []Question     `json:"questions"`
	CallbackData  map[string]any `json:"callback_data,omitempty"`
}

// InitiateResult is returned to the caller of Initiate.
type InitiateResult struct {
	ConversationID string `json:"conversation_id"`
	EmailSent      bool   `json:"email_sent"`
	VendorEmail    string `json:"vendor_email"`
	QuestionsCount int    `json:"questions_count"`
	Status         Status `json:"status"`
}

const initiateSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["event_metadata", "vendor_info", "questions"],
  "properties": {
    "event_metadata": {
      "type": "object",
      "required": ["name", "dates", "event_type", "planner_name", "planner_email"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "dates": {"type": "array", "items": {"type": "string"}},
        "event_type": {"type": "string", "minLength": 1},
        "planner_name": {"type": "string", "minLength": 1},
        "planner_email": {"type": "string", "minLength": 3},
        "planner_phone": {"type": ["string", "null"]}
      }
    },
    "vendor_info": {
      "type": "object",
      "required": ["name", "email", "service_type"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "email": {"type": "string", "minLength": 3},
        "service_type": {"type": "string", "minLength": 1},
        "phone": {"type": ["string", "null"]}
      }
    },
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/definitions/question"}
    },
    "callback_data": {"type": ["object", "null"]}
  },
  "definitions": {
    "question": {
      "type": "object",
      "required": ["id", "text"],
      "properties": {
        "id": {"type": ["integer", "string"]},
        "text": {"type": "string", "minLength": 1},
        "required": {"type": "boolean"},
        "options": {"type": ["array", "null"], "items": {"type": "string"}},
        "sub_questions": {"type": ["array", "null"], "items": {"$ref": "#/definitions/question"}}
      }
    }
  }
}`

var (
	initiateSchemaOnce sync.Once
	initiateSchema     *gojsonschema.Schema
	initiateSchemaErr  error
)

func loadInitiateSchema() (*gojsonschema.Schema, error) {
	initiateSchemaOnce.Do(func() {
		initiateSchema, initiateSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(initiateSchemaJSON))
	})
	return initiateSchema, initiateSchemaErr
}

// ParseInitiateRequest validates raw JSON against the request schema and the
// semantic rules, returning a *ValidationError on any problem.
func ParseInitiateRequest(body []byte) (*InitiateRequest, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, newValidationError("request body is required")
	}
	schema, err := loadInitiateSchema()
	if err != nil {
		return nil, fmt.Errorf("conversation: load request schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, newValidationError("invalid JSON: " + err.Error())
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			problems[i] = desc.String()
		}
		return nil, newValidationError(problems...)
	}

	var req InitiateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, newValidationError("invalid JSON: " + err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate applies the rules the schema cannot express.
func (r *InitiateRequest) Validate() error {
	var problems []string
	if len(r.Questions) == 0 {
		problems = append(problems, "questions must not be empty")
	}
	problems = append(problems, validateQuestions(r.Questions)...)
	if strings.TrimSpace(r.EventMetadata.Name) == "" {
		problems = append(problems, "event_metadata.name is required")
	}
	if strings.TrimSpace(r.EventMetadata.EventType) == "" {
		problems = append(problems, "event_metadata.event_type is required")
	}
	if strings.TrimSpace(r.EventMetadata.PlannerName) == "" {
		problems = append(problems, "event_metadata.planner_name is required")
	}
	if _, err := mail.ParseAddress(r.EventMetadata.PlannerEmail); err != nil {
		problems = append(problems, "event_metadata.planner_email is not a valid address")
	}
	if strings.TrimSpace(r.VendorInfo.Name) == "" {
		problems = append(problems, "vendor_info.name is required")
	}
	if strings.TrimSpace(r.VendorInfo.ServiceType) == "" {
		problems = append(problems, "vendor_info.service_type is required")
	}
	if _, err := mail.ParseAddress(r.VendorInfo.Email); err != nil {
		problems = append(problems, "vendor_info.email is not a valid address")
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}
