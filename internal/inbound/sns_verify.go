package inbound

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const maxCertBytes = 64 << 10

// ErrInvalidSignature marks SNS deliveries whose signature cannot be verified.
var ErrInvalidSignature = errors.New("inbound: invalid sns signature")

var snsCertHost = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// signedMessage keeps the envelope fields as raw strings; the canonical form
// must reproduce them byte for byte.
type signedMessage struct {
	Type             string  `json:"Type"`
	MessageID        string  `json:"MessageId"`
	TopicArn         string  `json:"TopicArn"`
	Subject          *string `json:"Subject"`
	Message          string  `json:"Message"`
	Timestamp        string  `json:"Timestamp"`
	SubscribeURL     string  `json:"SubscribeURL"`
	Token            string  `json:"Token"`
	Signature        string  `json:"Signature"`
	SignatureVersion string  `json:"SignatureVersion"`
	SigningCertURL   string  `json:"SigningCertURL"`
}

// SignatureVerifier checks SNS message signatures against the AWS signing
// certificate named in the message. Certificates are cached by URL.
type SignatureVerifier struct {
	client *http.Client

	mu    sync.Mutex
	certs map[string]*rsa.PublicKey
}

// NewSignatureVerifier uses client to download signing certificates.
func NewSignatureVerifier(client *http.Client) *SignatureVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SignatureVerifier{client: client, certs: make(map[string]*rsa.PublicKey)}
}

// Verify returns nil when body is an SNS message signed by AWS.
func (v *SignatureVerifier) Verify(ctx context.Context, body []byte) error {
	var msg signedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if msg.Signature == "" || msg.SigningCertURL == "" {
		return fmt.Errorf("%w: unsigned message", ErrInvalidSignature)
	}

	var hash crypto.Hash
	switch msg.SignatureVersion {
	case "1":
		hash = crypto.SHA1
	case "2":
		hash = crypto.SHA256
	default:
		return fmt.Errorf("%w: unsupported signature version %q", ErrInvalidSignature, msg.SignatureVersion)
	}

	canonical, err := stringToSign(msg)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature encoding: %v", ErrInvalidSignature, err)
	}
	key, err := v.publicKey(ctx, msg.SigningCertURL)
	if err != nil {
		return err
	}

	var digest []byte
	if hash == crypto.SHA1 {
		sum := sha1.Sum([]byte(canonical))
		digest = sum[:]
	} else {
		sum := sha256.Sum256([]byte(canonical))
		digest = sum[:]
	}
	if err := rsa.VerifyPKCS1v15(key, hash, digest, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func stringToSign(msg signedMessage) (string, error) {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(name)
		b.WriteByte('\n')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	switch msg.Type {
	case "Notification":
		field("Message", msg.Message)
		field("MessageId", msg.MessageID)
		if msg.Subject != nil {
			field("Subject", *msg.Subject)
		}
		field("Timestamp", msg.Timestamp)
		field("TopicArn", msg.TopicArn)
		field("Type", msg.Type)
	case "SubscriptionConfirmation", "UnsubscribeConfirmation":
		field("Message", msg.Message)
		field("MessageId", msg.MessageID)
		field("SubscribeURL", msg.SubscribeURL)
		field("Timestamp", msg.Timestamp)
		field("Token", msg.Token)
		field("TopicArn", msg.TopicArn)
		field("Type", msg.Type)
	default:
		return "", fmt.Errorf("%w: unknown message type %q", ErrInvalidSignature, msg.Type)
	}
	return b.String(), nil
}

func (v *SignatureVerifier) publicKey(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	u, err := url.Parse(certURL)
	if err != nil || u.Scheme != "https" || !snsCertHost.MatchString(u.Hostname()) || !strings.HasSuffix(u.Path, ".pem") {
		return nil, fmt.Errorf("%w: untrusted signing cert url %q", ErrInvalidSignature, certURL)
	}

	v.mu.Lock()
	key, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok {
		return key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("inbound: build cert request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inbound: fetch signing cert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inbound: fetch signing cert: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCertBytes))
	if err != nil {
		return nil, fmt.Errorf("inbound: read signing cert: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: signing cert is not PEM", ErrInvalidSignature)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse signing cert: %v", ErrInvalidSignature, err)
	}
	key, ok = cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signing cert key is not RSA", ErrInvalidSignature)
	}

	v.mu.Lock()
	v.certs[certURL] = key
	v.mu.Unlock()
	return key, nil
}
