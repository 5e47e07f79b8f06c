package conversation

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const addressPrefix = "aime-"

// Addresser builds and parses the per-conversation reply addresses
// (aime-<env>+<conversation_id>@<domain>).
type Addresser struct {
	Env    string
	Domain string
}

// NewAddresser normalizes env and domain.
func NewAddresser(env, domain string) Addresser {
	return Addresser{
		Env:    strings.ToLower(strings.TrimSpace(env)),
		Domain: strings.ToLower(strings.TrimSpace(domain)),
	}
}

// From is the sender address for outbound mail.
func (a Addresser) From() string {
	return fmt.Sprintf("%s%s@%s", addressPrefix, a.Env, a.Domain)
}

// ReplyTo is the address vendor replies must reach.
func (a Addresser) ReplyTo(conversationID string) string {
	return fmt.Sprintf("%s%s+%s@%s", addressPrefix, a.Env, conversationID, a.Domain)
}

// Parse extracts the conversation id from one recipient address. A tagged
// address must carry this deployment's environment.
func (a Addresser) Parse(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "", &ParseError{Input: raw, Reason: "not an email address"}
	}
	local := strings.ToLower(addr[:at])
	domain := strings.ToLower(addr[at+1:])
	if a.Domain != "" && domain != a.Domain {
		return "", &ParseError{Input: raw, Reason: "unrecognized domain"}
	}
	if !strings.HasPrefix(local, addressPrefix) {
		return "", &ParseError{Input: raw, Reason: "unrecognized local part"}
	}
	rest := local[len(addressPrefix):]
	candidate := rest
	if plus := strings.Index(rest, "+"); plus >= 0 {
		if plus == 0 {
			return "", &ParseError{Input: raw, Reason: "missing environment tag"}
		}
		if a.Env != "" && rest[:plus] != a.Env {
			return "", &ParseError{Input: raw, Reason: "environment mismatch"}
		}
		candidate = rest[plus+1:]
	}
	id, err := uuid.Parse(candidate)
	if err != nil {
		return "", &ParseError{Input: raw, Reason: "conversation id is not a uuid"}
	}
	return id.String(), nil
}

// Resolve returns the conversation id from the first recipient that parses.
func (a Addresser) Resolve(recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", &ParseError{Reason: "no recipients"}
	}
	var firstErr error
	for _, r := range recipients {
		id, err := a.Parse(r)
		if err == nil {
			return id, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}
