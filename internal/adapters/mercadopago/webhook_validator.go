package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

var (
	tsPattern = regexp.MustCompile(`(?:^|,)\s*ts=([^,]+)`)
	v1Pattern = regexp.MustCompile(`(?:^|,)\s*v1=([^,]+)`)
)

// WebhookValidator verifies Mercado Pago webhook signatures.
type WebhookValidator struct {
	secret string
}

// NewWebhookValidator creates a validator for the shared secret. An empty
// secret disables verification.
func NewWebhookValidator(secret string) *WebhookValidator {
	return &WebhookValidator{secret: secret}
}

// Verify checks the x-signature header from Mercado Pago.
// See: https://www.mercadopago.com.ar/developers/es/docs/your-integrations/notifications/webhooks
//
// The x-signature header contains: ts=<timestamp>,v1=<signature>
// The signature is HMAC-SHA256 of: id:<data.id>;request-id:<x-request-id>;ts:<timestamp>;
func (v *WebhookValidator) Verify(xSignature, xRequestID, dataID string) domain.SignatureOutcome {
	if v.secret == "" {
		return domain.SignatureUnverifiedNoSecret
	}
	if xSignature == "" {
		return domain.SignatureInvalid
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return domain.SignatureInvalid
	}

	manifest := buildManifest(dataID, xRequestID, ts)
	expected := Sign(manifest, v.secret)

	if !hmac.Equal([]byte(strings.ToLower(hash)), []byte(expected)) {
		return domain.SignatureInvalid
	}
	return domain.SignatureVerified
}

// parseSignatureHeader extracts ts and v1 values from x-signature header.
func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsPattern.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Pattern.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// buildManifest constructs the string to be signed. The request-id segment
// is omitted when the header is absent.
func buildManifest(dataID, requestID, ts string) string {
	var parts []string

	if dataID != "" {
		parts = append(parts, "id:"+dataID)
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}

	return strings.Join(parts, ";") + ";"
}

// Sign computes the hex HMAC-SHA256 of the manifest.
func Sign(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
