package server

// HTTPError is the uniform error body produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type UploadResponse struct {
	DocumentID int64  `json:"document_id"`
	Status     string `json:"status"`
}

type StatusResponse struct {
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count"`
	Error      string `json:"error,omitempty"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type SummarizeRequest struct {
	Scope string `json:"scope"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type InterviewRequest struct {
	Level string `json:"level"`
}

type InterviewResponse struct {
	SessionID int64    `json:"session_id"`
	Questions []string `json:"questions"`
}
