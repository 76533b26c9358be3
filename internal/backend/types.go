package backend

import "time"

// User is the profile the backend returns for an authenticated session.
// Department may arrive as a plain string or as a structured object depending
// on the backend revision, so it is kept as a flexible field.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Department  Department `json:"department,omitempty"`
	OID         string     `json:"oid,omitempty"` // provider object id
	TID         string     `json:"tid,omitempty"` // provider tenant id
	CreatedAt   string     `json:"created_at,omitempty"`
	UpdatedAt   string     `json:"updated_at,omitempty"`
}

// Department tolerates both the string and object encodings the backend uses.
type Department struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
}

// AuthResponse is returned by the azure-login exchange.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}

// AccountInfo is the optional provider account detail forwarded with the
// azure-login exchange.
type AccountInfo struct {
	HomeAccountID string `json:"homeAccountId,omitempty"`
	Environment   string `json:"environment,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	Username      string `json:"username,omitempty"`
}

// Document is a backend document listing entry.
type Document struct {
	ID                   string    `json:"document_id"`
	Title                string    `json:"title"`
	FileName             string    `json:"file_name"`
	FileSize             int64     `json:"file_size"`
	ContentType          string    `json:"content_type"`
	Status               string    `json:"status"`
	Department           string    `json:"department,omitempty"`
	ConfidentialityLevel string    `json:"confidentiality_level,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	Description          string    `json:"description,omitempty"`
	BlobURL              string    `json:"blob_url,omitempty"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

// DocumentList wraps a paginated listing.
type DocumentList struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// ListParams are the standard documents query parameters.
type ListParams struct {
	Department   string
	DocumentType string
	Limit        int
	Offset       int
	Sort         string
	Order        string // "asc" | "desc"
}

// UploadResult is the payload of a successful document upload.
type UploadResult struct {
	DocumentID  string   `json:"document_id"`
	DocumentIDs []string `json:"documentIds,omitempty"`
	Title       string   `json:"title"`
	FileName    string   `json:"file_name"`
	FileSize    int64    `json:"file_size"`
	ContentType string   `json:"content_type"`
	Status      string   `json:"status"`
	BlobURL     string   `json:"blob_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// ChatMessage is a single turn inside a chat session.
type ChatMessage struct {
	Role      string `json:"role"` // "system" | "user" | "assistant"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatSession is a stored RAG conversation.
type ChatSession struct {
	SessionID string        `json:"session_id"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}

// ChatAnswer is the backend's reply to a RAG chat turn.
type ChatAnswer struct {
	MessageID        string   `json:"message_id,omitempty"`
	Role             string   `json:"role,omitempty"`
	Content          string   `json:"content"`
	ConfidenceScore  float64  `json:"confidence_score,omitempty"`
	RelatedDocuments []string `json:"related_documents,omitempty"`
	Timestamp        string   `json:"timestamp,omitempty"`
}

// DirectChatSettings tune a non-retrieval chat turn.
type DirectChatSettings struct {
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// DirectChatRequest asks the backend to forward a query straight to the model.
type DirectChatRequest struct {
	Message        string              `json:"message"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Settings       *DirectChatSettings `json:"settings,omitempty"`
}

// TokenUsage reports model token consumption for a direct chat turn.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// DirectChatResponse is the backend's reply to a direct chat turn.
type DirectChatResponse struct {
	MessageID          string      `json:"message_id"`
	ConversationID     string      `json:"conversation_id"`
	Response           string      `json:"response"`
	ConfidenceScore    float64     `json:"confidence_score"`
	ResponseType       string      `json:"response_type,omitempty"`
	AIModelUsed        string      `json:"ai_model_used,omitempty"`
	TokensUsed         *TokenUsage `json:"tokens_used,omitempty"`
	SuggestedQuestions []string    `json:"suggested_questions,omitempty"`
	Timestamp          string      `json:"timestamp,omitempty"`
}
