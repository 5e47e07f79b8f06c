package inbound

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	maxPartBytes   = 2 << 20
	maxNestedParts = 5
)

// Message is the subset of a raw RFC 5322 message the engine cares about.
type Message struct {
	MessageID string
	From      string
	To        []string
	Subject   string
	Date      time.Time
	Text      string
}

// ParseMIME reads a raw message and returns its headers and best text body.
// text/plain wins over text/html; attachments are skipped.
func ParseMIME(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("inbound: read mime message: %w", err)
	}

	out := &Message{
		MessageID: strings.Trim(msg.Header.Get("Message-Id"), "<> \t"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      bareAddress(msg.Header.Get("From")),
	}
	if list, err := msg.Header.AddressList("To"); err == nil {
		for _, addr := range list {
			out.To = append(out.To, addr.Address)
		}
	}
	if d, err := msg.Header.Date(); err == nil {
		out.Date = d
	}

	plain, htmlBody, err := readEntity(textproto.MIMEHeader(msg.Header), msg.Body, 0)
	if err != nil {
		return nil, err
	}
	out.Text = plain
	if strings.TrimSpace(out.Text) == "" && htmlBody != "" {
		out.Text = htmlToText(htmlBody)
	}
	return out, nil
}

func readEntity(header textproto.MIMEHeader, body io.Reader, depth int) (string, string, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxNestedParts {
			return "", "", nil
		}
		boundary := params["boundary"]
		if boundary == "" {
			return "", "", errors.New("inbound: multipart body without boundary")
		}
		var plain, htmlBody string
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return plain, htmlBody, fmt.Errorf("inbound: read mime part: %w", err)
			}
			if isAttachment(part.Header) {
				continue
			}
			p, h, err := readEntity(part.Header, part, depth+1)
			if err != nil {
				return plain, htmlBody, err
			}
			if plain == "" {
				plain = p
			}
			if htmlBody == "" {
				htmlBody = h
			}
		}
		return plain, htmlBody, nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	// multipart.Reader already strips quoted-printable for parts
	data, err := io.ReadAll(io.LimitReader(transferDecoder(header.Get("Content-Transfer-Encoding"), body), maxPartBytes))
	if err != nil {
		return "", "", fmt.Errorf("inbound: decode %s body: %w", mediaType, err)
	}
	text := toUTF8(data, params["charset"])
	if mediaType == "text/html" {
		return "", text, nil
	}
	return text, "", nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func toUTF8(data []byte, charset string) string {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(data)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func isAttachment(header textproto.MIMEHeader) bool {
	disposition, _, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

func decodeHeader(v string) string {
	dec := &mime.WordDecoder{CharsetReader: charsetReader}
	out, err := dec.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(out)
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

func bareAddress(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return v
	}
	return addr.Address
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "blockquote": true,
}

// htmlToText flattens an HTML body; quoted blocks are kept so CleanBody can drop them by marker.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "head" {
				skip++
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style" || tag == "head") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			raw := string(z.Text())
			text := strings.Join(strings.Fields(raw), " ")
			if text == "" {
				continue
			}
			if raw[0] == ' ' || raw[0] == '\n' || raw[0] == '\t' {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			if last := raw[len(raw)-1]; last == ' ' || last == '\n' || last == '\t' {
				b.WriteByte(' ')
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// CleanBody strips quoted history from a reply: lines starting with '>' are
// dropped and everything from a reply header onwards is cut.
func CleanBody(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if isReplyHeader(trimmed, lines[i+1:]) {
			break
		}
		if strings.HasPrefix(trimmed, "-----Original Message-----") {
			break
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// isReplyHeader matches "On <date>, <sender> wrote:", including headers that
// clients wrap onto a second line.
func isReplyHeader(line string, rest []string) bool {
	if !strings.HasPrefix(line, "On ") {
		return false
	}
	if strings.HasSuffix(line, "wrote:") {
		return true
	}
	if len(rest) == 0 {
		return false
	}
	next := strings.TrimSpace(rest[0])
	return strings.HasSuffix(next, "wrote:") && strings.Contains(line+" "+next, "@")
}
