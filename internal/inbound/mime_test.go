package inbound

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMIMEQuotedPrintablePlain(t *testing.T) {
	raw := crlf(`From: Harbor Sales <sales@harbor.example.com>
To: aime-dev+abc@groupize.com
Subject: =?UTF-8?B?UmU6IFByaWNpbmcgSW5xdWlyeQ==?=
Message-Id: <reply-1@harbor.example.com>
Date: Tue, 14 Oct 2025 09:30:00 -0400
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

We charge =2485 per person and the room holds 120 gue=
sts.
`)
	msg, err := ParseMIME(raw)
	require.NoError(t, err)
	assert.Equal(t, "sales@harbor.example.com", msg.From)
	assert.Equal(t, []string{"aime-dev+abc@groupize.com"}, msg.To)
	assert.Equal(t, "Re: Pricing Inquiry", msg.Subject)
	assert.Equal(t, "reply-1@harbor.example.com", msg.MessageID)
	assert.False(t, msg.Date.IsZero())
	assert.Contains(t, msg.Text, "We charge $85 per person and the room holds 120 guests.")
}

func TestParseMIMEPrefersPlainInAlternative(t *testing.T) {
	raw := crlf(`From: sales@harbor.example.com
To: aime-dev+abc@groupize.com
Subject: Re: quote
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--alt
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

UHJpY2UgaXMgJDQwIHBlciBndWVzdC4NCkRlcG9zaXQgaXMgMjAlLg0K
--alt--
`)
	msg, err := ParseMIME(raw)
	require.NoError(t, err)
	assert.Equal(t, "Price is $40 per guest.\r\nDeposit is 20%.\r\n", msg.Text)
}

func TestParseMIMENestedMixedSkipsAttachments(t *testing.T) {
	raw := crlf(`From: sales@harbor.example.com
To: aime-dev+abc@groupize.com
Subject: menu
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain

See attached menu. Vegetarian mains are available.
--inner--
--outer
Content-Type: text/plain; name="menu.txt"
Content-Disposition: attachment; filename="menu.txt"

ATTACHMENT TEXT
--outer--
`)
	msg, err := ParseMIME(raw)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Vegetarian mains are available.")
	assert.NotContains(t, msg.Text, "ATTACHMENT")
}

func TestParseMIMEFallsBackToHTML(t *testing.T) {
	raw := crlf(`From: sales@harbor.example.com
To: aime-dev+abc@groupize.com
Subject: html only
Content-Type: text/html; charset=utf-8

<html><head><style>p{color:red}</style></head><body><p>Parking is <b>free</b> in Lot B.</p><div>Load-in from 8am.</div><script>alert(1)</script></body></html>
`)
	msg, err := ParseMIME(raw)
	require.NoError(t, err)
	assert.Equal(t, "Parking is free in Lot B.\n\nLoad-in from 8am.", msg.Text)
}

func TestParseMIMEDecodesLegacyCharset(t *testing.T) {
	raw := crlf("From: sales@harbor.example.com\nTo: aime-dev+abc@groupize.com\nSubject: cafe\nContent-Type: text/plain; charset=iso-8859-1\n\nCaf\xe9 seating for 40.\n")
	msg, err := ParseMIME(raw)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Café seating for 40.")
}

func TestParseMIMERejectsMultipartWithoutBoundary(t *testing.T) {
	raw := crlf("From: a@b.com\nContent-Type: multipart/mixed\n\nbody\n")
	_, err := ParseMIME(raw)
	assert.Error(t, err)
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops quoted lines",
			in:   "Yes, available.\n> Are you available on June 3?\n>> older\nThanks",
			want: "Yes, available.\nThanks",
		},
		{
			name: "cuts at reply header",
			in:   "Price is $85.\r\n\r\nOn Mon, Oct 13, 2025 at 9:00 AM AIME <aime-dev+x@groupize.com> wrote:\r\nWhat is your price?",
			want: "Price is $85.",
		},
		{
			name: "cuts at outlook separator",
			in:   "Deposit is 25%.\n\n-----Original Message-----\nFrom: AIME",
			want: "Deposit is 25%.",
		},
		{
			name: "keeps On lines without an address",
			in:   "On weekends we close at 10pm.\nThanks",
			want: "On weekends we close at 10pm.\nThanks",
		},
		{
			name: "keeps On lines that are not reply headers",
			in:   "Thanks for reaching out.\nOn Saturdays we can host 200 guests, email events@harbor.example.com to confirm.\nPrice is $85 per person.\n\nOn Mon, Oct 13, 2025 at 9:00 AM AIME <aime-dev+x@groupize.com> wrote:\n> old",
			want: "Thanks for reaching out.\nOn Saturdays we can host 200 guests, email events@harbor.example.com to confirm.\nPrice is $85 per person.",
		},
		{
			name: "cuts at wrapped reply header",
			in:   "Deposit is 25%.\n\nOn Mon, Oct 13, 2025 at 9:00 AM AIME\n<aime-dev+x@groupize.com> wrote:\n> old",
			want: "Deposit is 25%.",
		},
		{
			name: "all quoted",
			in:   "> a\n> b",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanBody(tt.in))
		})
	}
}
