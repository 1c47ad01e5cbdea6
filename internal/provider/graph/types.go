// Package graph implements a Provider that sends messages via the Microsoft
// Graph API sendMail endpoint in MIME format.
package graph

import (
	"encoding/base64"
	"fmt"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// mimeContentType is the request content type Graph expects for a base64
// encoded MIME message.
const mimeContentType = "text/plain"

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildMIMEPayload renders msg and returns the sendMail request body: the
// bare RFC 5322 message, base64 encoded.
func buildMIMEPayload(msg *email.Message) ([]byte, error) {
	rendered, err := msg.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	mime := []byte(email.StripEndOfData(rendered))
	payload := make([]byte, base64.StdEncoding.EncodedLen(len(mime)))
	base64.StdEncoding.Encode(payload, mime)
	return payload, nil
}
