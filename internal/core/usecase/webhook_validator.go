package usecase

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const defaultReplayWindow = 5 * time.Minute

// WebhookValidator authenticates provider callbacks and enforces the replay
// window. It never errors; rejections carry a typed reason.
type WebhookValidator struct {
	window time.Duration
	now    func() time.Time
}

func NewWebhookValidator(window time.Duration) *WebhookValidator {
	if window <= 0 {
		window = defaultReplayWindow
	}
	return &WebhookValidator{
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (v *WebhookValidator) Validate(
	body []byte,
	creds domain.WebhookCredentials,
	secret string,
	scheme domain.WebhookAuthScheme,
) domain.ValidationResult {
	if secret == "" {
		return domain.Invalid(domain.RejectMissingSecret)
	}

	switch scheme {
	case domain.WebhookAuthHMAC:
		signature := normalizeSignature(creds.Signature)
		if signature == "" {
			return domain.Invalid(domain.RejectMissingCredentials)
		}
		if creds.Timestamp.IsZero() {
			return domain.Invalid(domain.RejectMissingTimestamp)
		}
		expected := SignWebhook(body, secret, creds.Timestamp)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return domain.Invalid(domain.RejectBadSignature)
		}
	case domain.WebhookAuthToken:
		if creds.Token == "" {
			return domain.Invalid(domain.RejectMissingCredentials)
		}
		if creds.Timestamp.IsZero() {
			return domain.Invalid(domain.RejectMissingTimestamp)
		}
		if subtle.ConstantTimeCompare([]byte(creds.Token), []byte(secret)) != 1 {
			return domain.Invalid(domain.RejectBadToken)
		}
	default:
		return domain.Invalid(domain.RejectUnknownProvider)
	}

	skew := v.now().Sub(creds.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return domain.Invalid(domain.RejectStaleTimestamp)
	}
	return domain.Valid()
}

// SignWebhook returns the hex HMAC-SHA256 of "<unix seconds>.<body>".
func SignWebhook(body []byte, secret string, timestamp time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeSignature(raw string) string {
	sig := strings.TrimSpace(raw)
	sig = strings.TrimPrefix(sig, "sha256=")
	return strings.ToLower(sig)
}
