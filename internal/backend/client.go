package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/docport/gateway/pkg/metrics"
)

// Client is the typed HTTP client for the remote document/chat backend. It
// attaches the caller's session token as a bearer credential and translates
// failures into *Error values (see errors.go).
type Client struct {
	baseURL string
	http    *http.Client

	// health verdicts are cached so dashboards polling /ready do not hammer
	// the backend health endpoint
	health *ttlcache.Cache[string, bool]
}

const healthCacheTTL = time.Minute

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, `\"`)

// NewClient creates a backend client. baseURL includes any deployment path
// prefix (e.g. https://api.example.com/api/v1).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, bool](healthCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, bool](),
	)
	go cache.Start()
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		health:  cache,
	}
}

// envelope tolerates both `{ "data": X }` and bare `X` response bodies.
func decodeEnvelope(raw []byte, out interface{}) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

// errorMessage extracts the backend's human-readable message from an error
// body; falls back to a generic status line when the body is not parseable.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error.Message != "":
			return body.Error.Message
		case body.Detail != "":
			return body.Detail
		case body.Message != "":
			return body.Message
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(&Error{Kind: KindUnreachable, Message: err.Error()})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(&Error{Kind: KindUnreachable, Message: "reading response: " + err.Error()})
	}
	if resp.StatusCode >= 500 {
		return c.fail(&Error{Kind: KindServer, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)})
	}
	if resp.StatusCode >= 400 {
		return c.fail(&Error{Kind: KindRejected, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)})
	}
	if out == nil {
		return nil
	}
	if err := decodeEnvelope(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) fail(e *Error) error {
	metrics.BackendErrors.WithLabelValues(string(e.Kind)).Inc()
	return e
}

// AzureLogin exchanges a provider-issued access token for a backend session
// token and profile.
func (c *Client) AzureLogin(ctx context.Context, providerToken string, account *AccountInfo) (*AuthResponse, error) {
	req := struct {
		AccessToken string       `json:"access_token"`
		AccountInfo *AccountInfo `json:"account_info,omitempty"`
	}{AccessToken: providerToken, AccountInfo: account}

	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/azure-login", "", req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &Error{Kind: KindServer, Message: "login exchange returned no token"}
	}
	if out.User == nil {
		return nil, &Error{Kind: KindServer, Message: "login exchange returned no user"}
	}
	return &out, nil
}

// Me returns the profile for the given session token. A rejection doubles as
// the token-validation probe.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout performs the best-effort server-side invalidation.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// ListDocuments fetches a document listing with the standard query params.
func (c *Client) ListDocuments(ctx context.Context, token string, p ListParams) (*DocumentList, error) {
	q := url.Values{}
	if p.Department != "" {
		q.Set("department", p.Department)
	}
	if p.DocumentType != "" {
		q.Set("document_type", p.DocumentType)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	}
	path := "/documents"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out DocumentList
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocument streams one file to the backend as multipart form data.
// Metadata fields mirror the backend upload contract.
func (c *Client) UploadDocument(ctx context.Context, token string, file io.Reader, fileName, contentType string, fields map[string]string) (*UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// CreateFormFile would hardcode octet-stream; the file part carries the
	// real content type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ph := make(textproto.MIMEHeader)
	ph.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	ph.Set("Content-Type", contentType)
	fw, err := w.CreatePart(ph)
	if err != nil {
		return nil, fmt.Errorf("multipart file: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("multipart field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var out UploadResult
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument removes a document by id.
func (c *Client) DeleteDocument(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), token, nil, nil)
}

// ChatSessions lists stored RAG conversations.
func (c *Client) ChatSessions(ctx context.Context, token string) ([]ChatSession, error) {
	var out []ChatSession
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatSession fetches one conversation including its messages.
func (c *Client) ChatSession(ctx context.Context, token, id string) (*ChatSession, error) {
	var out ChatSession
	if err := c.do(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateChatSession starts a new conversation.
func (c *Client) CreateChatSession(ctx context.Context, token, name string) (*ChatSession, error) {
	req := struct {
		Name string `json:"name"`
	}{Name: name}
	var out ChatSession
	if err := c.do(ctx, http.MethodPost, "/chat/sessions", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameChatSession updates a conversation's display name.
func (c *Client) RenameChatSession(ctx context.Context, token, id, name string) (*ChatSession, error) {
	req := struct {
		Name string `json:"name"`
	}{Name: name}
	var out ChatSession
	if err := c.do(ctx, http.MethodPatch, "/chat/sessions/"+url.PathEscape(id), token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChatSession removes a conversation.
func (c *Client) DeleteChatSession(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/chat/sessions/"+url.PathEscape(id), token, nil, nil)
}

// SendMessage posts one RAG chat turn and returns the assistant's answer.
func (c *Client) SendMessage(ctx context.Context, token, sessionID, content string) (*ChatAnswer, error) {
	req := struct {
		Content string `json:"content"`
	}{Content: content}
	var out ChatAnswer
	if err := c.do(ctx, http.MethodPost, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFeedback records user feedback on an assistant message.
func (c *Client) SendFeedback(ctx context.Context, token, sessionID, messageID, feedback, comment string) error {
	req := struct {
		Feedback string `json:"feedback"`
		Comment  string `json:"comment,omitempty"`
	}{Feedback: feedback, Comment: comment}
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/messages/" + url.PathEscape(messageID) + "/feedback"
	return c.do(ctx, http.MethodPost, path, token, req, nil)
}

// DirectChat forwards a query straight to the model without retrieval.
func (c *Client) DirectChat(ctx context.Context, token string, req *DirectChatRequest) (*DirectChatResponse, error) {
	var out DirectChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/direct", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models lists the model deployments available for direct chat.
func (c *Client) Models(ctx context.Context, token string) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/ai/models", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health probes the backend liveness endpoint. Results are cached for one
// minute to keep readiness polling cheap.
func (c *Client) Health(ctx context.Context) error {
	if item := c.health.Get("health"); item != nil {
		if item.Value() {
			return nil
		}
		return &Error{Kind: KindUnreachable, Message: "backend unhealthy (cached)"}
	}
	err := c.do(ctx, http.MethodGet, "/health", "", nil, nil)
	c.health.Set("health", err == nil, healthCacheTTL)
	return err
}
