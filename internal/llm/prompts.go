package llm

import (
	"fmt"
	"strings"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
)

const (
	composeSystemPrompt  = "You are a professional event planner who writes effective vendor outreach emails on behalf of a client."
	followUpSystemPrompt = "You are a professional event planner writing follow-up emails to vendors."
	extractSystemPrompt  = "You are an expert at parsing vendor responses and extracting structured information. You reply with JSON only."
)

func initialPrompt(req conversation.ComposeRequest) string {
	var b strings.Builder
	b.WriteString("Write an email to a vendor requesting pricing and availability information.\n")
	b.WriteString("Use a conversational, professional but semi-casual tone and make it clear you are representing a client.\n\n")
	fmt.Fprintf(&b, "Event Details:\n- Event Name: %s\n- Event Type: %s\n- Dates: %s\n- Your Name: %s\n\n",
		req.Event.Name, req.Event.EventType, strings.Join(req.Event.Dates, ", "), req.Event.PlannerName)
	fmt.Fprintf(&b, "Vendor Details:\n- Vendor Name: %s\n- Service Type: %s\n\n", req.Vendor.Name, req.Vendor.ServiceType)
	fmt.Fprintf(&b, "Questions to ask:\n%s\n\n", formatQuestionsForEmail(req.Questions))
	b.WriteString("Requirements:\n")
	b.WriteString("1. Ask every question in a natural way.\n")
	b.WriteString("2. Include a clear call to action for a reply.\n")
	b.WriteString("3. The subject line should be compelling and clear.\n\n")
	b.WriteString(`Respond with a JSON object: {"subject": "...", "body": "..."}`)
	return b.String()
}

func followUpPrompt(req conversation.ComposeRequest) string {
	var b strings.Builder
	b.WriteString("You are following up with a vendor who replied to your inquiry but did not answer every question.\n")
	b.WriteString("Write a polite, professional follow-up email.\n\n")
	fmt.Fprintf(&b, "Event: %s\nVendor: %s\nService Type: %s\n", req.Event.Name, req.Vendor.Name, req.Vendor.ServiceType)
	if len(req.History) > 0 {
		b.WriteString("\nPrevious email exchange summary:\n")
		for _, ex := range req.History {
			label := "Outbound"
			if ex.Direction == conversation.DirectionInbound {
				label = "Inbound"
			}
			line := ex.Subject
			if line == "" {
				line = ex.Summary
			}
			fmt.Fprintf(&b, "- %s: %s\n", label, line)
		}
	}
	fmt.Fprintf(&b, "\nUnanswered questions that still need responses:\n%s\n\n", formatQuestionsForEmail(req.Questions))
	b.WriteString("Requirements:\n")
	b.WriteString("1. Thank them for their previous response.\n")
	b.WriteString("2. Politely mention the specific information still needed.\n")
	b.WriteString("3. Keep it brief but complete.\n")
	if req.Attempt >= 2 {
		b.WriteString("4. Include a clear deadline for a reply.\n")
	}
	fmt.Fprintf(&b, "\nFollow-up number: %d of %d\n\n", req.Attempt, req.MaxAttempts)
	b.WriteString(`Respond with a JSON object: {"subject": "...", "body": "..."}`)
	return b.String()
}

func extractPrompt(body string, pending []conversation.Question) string {
	var b strings.Builder
	b.WriteString("Extract answers to the questions below from a vendor's email reply.\n\n")
	fmt.Fprintf(&b, "Questions:\n%s\n\n", formatQuestionsForParsing(pending))
	fmt.Fprintf(&b, "Vendor's email reply:\n\"\"\"\n%s\n\"\"\"\n\n", body)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Look for explicit and implicit answers.\n")
	b.WriteString("2. Use the vendor's own wording as the answer.\n")
	b.WriteString("3. Only include questions that are clearly answered; omit the rest.\n")
	b.WriteString("4. Add a one sentence summary of the reply.\n\n")
	b.WriteString(`Respond with JSON: {"answers": [{"question_id": 1, "answer": "We have availability"}], "summary": "..."}`)
	return b.String()
}

func formatQuestionsForEmail(qs []conversation.Question) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		line := fmt.Sprintf("%s. %s", q.ID, q.Text)
		if q.Required {
			line += " (Required)"
		}
		if len(q.Options) > 0 {
			line += "\n   Options: " + strings.Join(q.Options, ", ")
		}
		for _, sub := range q.SubQuestions {
			line += fmt.Sprintf("\n   - %s", sub.Text)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n\n")
}

func formatQuestionsForParsing(qs []conversation.Question) string {
	var lines []string
	for _, q := range qs {
		lines = append(lines, fmt.Sprintf("ID %s: %s", q.ID, q.Text))
		if len(q.Options) > 0 {
			lines = append(lines, fmt.Sprintf("   (Options: %s)", strings.Join(q.Options, ", ")))
		}
	}
	return strings.Join(lines, "\n")
}

func fallbackInitial(req conversation.ComposeRequest) conversation.ComposedEmail {
	subject := fmt.Sprintf("Pricing Inquiry for %s - %s", req.Event.Name, req.Event.EventType)
	body := fmt.Sprintf(`Hi %s,

I hope this email finds you well. I'm %s, and I'm working with a client to plan their upcoming %s called "%s" scheduled for %s.

We're exploring %s options and would love to discuss how you might be able to support this event. Could you please provide information on the following:

%s

Thank you for your time, and I look forward to hearing from you soon!

Best regards,
%s
%s`,
		req.Vendor.Name, req.Event.PlannerName, req.Event.EventType, req.Event.Name, strings.Join(req.Event.Dates, ", "),
		req.Vendor.ServiceType, formatQuestionsForEmail(req.Questions), req.Event.PlannerName, req.Event.PlannerEmail)
	return conversation.ComposedEmail{Subject: subject, Body: body}
}

func fallbackFollowUp(req conversation.ComposeRequest) conversation.ComposedEmail {
	subject := fmt.Sprintf("Follow-up: %s - Additional Information Needed", req.Event.Name)
	body := fmt.Sprintf(`Hi %s,

Thank you for your response regarding %s.

To complete our evaluation, I still need a few additional details:

%s

I'd appreciate your response when you have a chance.

Best regards,
%s`,
		req.Vendor.Name, req.Event.Name, formatQuestionsForEmail(req.Questions), req.Event.PlannerName)
	return conversation.ComposedEmail{Subject: subject, Body: body}
}
