package chessdto

// DomainError is the wire form of a rejected game operation.
type DomainError struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
	Targets   []string   `json:"targets,omitempty"`
	State     *GameState `json:"state,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}

// ErrorResponse is the body of leaderboard API failures. Details is only
// populated in development.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
