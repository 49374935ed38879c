package response

// SuccessResponse is a plain acknowledgement.
type SuccessResponse struct {
	Message string `json:"message" example:"leave accepted"`
}

// ErrorResponse is returned by every failing endpoint.
type ErrorResponse struct {
	// Machine-readable code, e.g. MAP_NOT_FOUND
	Code string `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// Optional details, usually the underlying error
	Details string `json:"details,omitempty"`
}

// TokenResponse carries a freshly minted player token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}
