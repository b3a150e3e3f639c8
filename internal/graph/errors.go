package graph

import "fmt"

// APIError is an error reported by the Graph API. The API may return it inside
// an HTTP 200 response, so it is detected from the body rather than the status.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("graph api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api %s (status %d, code %d): %s", e.Type, e.Status, e.Code, e.Message)
}

// IsTokenError reports whether the provider rejected the access token.
func (e *APIError) IsTokenError() bool {
	return e.Code == 190 || e.Type == "OAuthException"
}
