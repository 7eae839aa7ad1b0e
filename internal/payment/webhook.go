package payment

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const webhookStatusSucceeded = "succeeded"

// webhookClaims is the claim set the gateway signs into its webhook body.
type webhookClaims struct {
	jwt.RegisteredClaims
	OrderID  string `json:"orderId"`
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// JWTVerifier implements WebhookVerifier for webhooks delivered as compact
// HS256-signed tokens sharing a secret with the gateway.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier around the shared webhook secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and authenticates the token, rejecting any algorithm other
// than HS256 so a forged "none" or asymmetric header cannot slip through.
func (verifier *JWTVerifier) Verify(body []byte) (WebhookEvent, error) {
	var claims webhookClaims
	token, err := jwt.ParseWithClaims(string(body), &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return verifier.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.OrderID == "" || claims.IntentID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing order or intent id", ErrInvalidSignature)
	}
	return WebhookEvent{
		OrderID:   claims.OrderID,
		IntentID:  claims.IntentID,
		Succeeded: claims.Status == webhookStatusSucceeded,
		Reason:    claims.Reason,
	}, nil
}
