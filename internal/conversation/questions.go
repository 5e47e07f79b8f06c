package conversation

import (
	"fmt"
	"strings"
	"time"
)

// validateQuestions checks ids are present and unique across the whole tree.
func validateQuestions(qs []Question) []string {
	var problems []string
	seen := make(map[QuestionID]bool)
	var walk func(path string, qs []Question)
	walk = func(path string, qs []Question) {
		for i, q := range qs {
			at := fmt.Sprintf("%s[%d]", path, i)
			if q.ID == "" {
				problems = append(problems, at+".id is required")
			} else if seen[q.ID] {
				problems = append(problems, fmt.Sprintf("%s.id %q is duplicated", at, q.ID))
			}
			seen[q.ID] = true
			if strings.TrimSpace(q.Text) == "" {
				problems = append(problems, at+".text is required")
			}
			walk(at+".sub_questions", q.SubQuestions)
		}
	}
	walk("questions", qs)
	return problems
}

// PendingRequired returns required top-level questions without an answer,
// in their original order.
func (c *Conversation) PendingRequired() []Question {
	var out []Question
	for _, q := range c.Questions {
		if q.Required && !q.Answered {
			out = append(out, q)
		}
	}
	return out
}

// ExtractionTargets flattens every unanswered question, required ones first,
// so the text capability sees parents together with their open sub-questions.
func (c *Conversation) ExtractionTargets() []Question {
	var required, optional []Question
	var walk func(qs []Question)
	walk = func(qs []Question) {
		for _, q := range qs {
			if q.Answered {
				continue
			}
			flat := q
			flat.SubQuestions = nil
			if q.Required {
				required = append(required, flat)
			} else {
				optional = append(optional, flat)
			}
			walk(q.SubQuestions)
		}
	}
	walk(c.Questions)
	return append(required, optional...)
}

// FindQuestion returns the question with id anywhere in the tree.
func (c *Conversation) FindQuestion(id QuestionID) (*Question, bool) {
	return findQuestion(c.Questions, id)
}

func findQuestion(qs []Question, id QuestionID) (*Question, bool) {
	for i := range qs {
		if qs[i].ID == id {
			return &qs[i], true
		}
		if q, ok := findQuestion(qs[i].SubQuestions, id); ok {
			return q, true
		}
	}
	return nil, false
}

// MergeAnswers applies extracted answers and returns the ids that changed.
// Answered questions are never overwritten, unknown ids are ignored and
// blank answers count as no answer. UpdatedAt moves only when something
// changed.
func (c *Conversation) MergeAnswers(extracted map[QuestionID]string, now time.Time) []QuestionID {
	if len(extracted) == 0 {
		return nil
	}
	var changed []QuestionID
	mergeQuestions(c.Questions, extracted, &changed)
	if len(changed) > 0 {
		c.UpdatedAt = now
	}
	return changed
}

func mergeQuestions(qs []Question, extracted map[QuestionID]string, changed *[]QuestionID) {
	for i := range qs {
		q := &qs[i]
		if len(q.SubQuestions) > 0 {
			mergeQuestions(q.SubQuestions, extracted, changed)
			if q.Answered || !requiredAnswered(q.SubQuestions) {
				continue
			}
			answer := normalizeAnswer(extracted[q.ID])
			if answer == "" {
				answer = joinSubAnswers(q.SubQuestions)
			}
			if answer == "" {
				continue
			}
			q.setAnswer(answer)
			*changed = append(*changed, q.ID)
			continue
		}
		if q.Answered {
			continue
		}
		answer := normalizeAnswer(extracted[q.ID])
		if answer == "" {
			continue
		}
		q.setAnswer(answer)
		*changed = append(*changed, q.ID)
	}
}

func requiredAnswered(qs []Question) bool {
	for _, q := range qs {
		if q.Required && !q.Answered {
			return false
		}
	}
	return true
}

func joinSubAnswers(qs []Question) string {
	var parts []string
	for _, q := range qs {
		if q.Answered && q.Answer != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimSpace(q.Text), *q.Answer))
		}
	}
	return strings.Join(parts, "; ")
}

func normalizeAnswer(a string) string {
	a = strings.TrimSpace(a)
	if strings.EqualFold(a, "null") {
		return ""
	}
	return a
}

func (q *Question) setAnswer(answer string) {
	q.Answer = &answer
	q.Answered = true
}
