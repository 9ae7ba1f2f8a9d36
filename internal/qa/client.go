package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service endpoints.
const (
	pathListDocuments   = "/get_uploaded_pdfs/"
	pathGetConversation = "/get_conversation/"
	pathUploadDocument  = "/upload_pdf/"
	pathAskQuestion     = "/ask_question/"

	// DefaultBaseURL is where the service listens when run locally.
	DefaultBaseURL = "http://127.0.0.1:8000"
)

// Client talks to the Document Q&A Service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

// NewClient returns a client for baseURL. A non-positive httpTimeout leaves
// requests without a client-side timeout; callers bound them through ctx.
func NewClient(baseURL string, httpTimeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &http.Client{}
	if httpTimeout > 0 {
		hc.Timeout = httpTimeout
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        logger,
	}
}

// BaseURL returns the service root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// ListDocuments returns every document known to the service, in service order.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var out listDocumentsResponse
	if err := c.doJSON(ctx, http.MethodGet, pathListDocuments, nil, &out); err != nil {
		return nil, err
	}
	if out.Pdfs == nil {
		return nil, fmt.Errorf("%w: missing pdfs", ErrMalformedResponse)
	}
	docs := make([]Document, 0, len(*out.Pdfs))
	for _, d := range *out.Pdfs {
		if d.PdfID == "" {
			return nil, fmt.Errorf("%w: document without pdf_id", ErrMalformedResponse)
		}
		docs = append(docs, d.toDocument())
	}
	return docs, nil
}

// GetConversation returns the resolved question/answer history of a document, oldest first.
func (c *Client) GetConversation(ctx context.Context, documentID string) ([]Turn, error) {
	if documentID == "" {
		return nil, errors.New("document id cannot be empty")
	}
	path := pathGetConversation + "?" + url.Values{"pdf_id": {documentID}}.Encode()
	var out conversationResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(out.Conversation))
	for _, w := range out.Conversation {
		turns = append(turns, w.toTurn())
	}
	return turns, nil
}

// UploadDocument sends a PDF as multipart form data and returns the id issued by the service.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (string, error) {
	if filename == "" {
		return "", errors.New("filename cannot be empty")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var out uploadResponse
	if err := c.do(ctx, http.MethodPost, pathUploadDocument, mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.PdfID == "" {
		return "", fmt.Errorf("%w: missing pdf_id", ErrMalformedResponse)
	}
	return out.PdfID, nil
}

// AskQuestion asks a question about a document and returns the answer text.
func (c *Client) AskQuestion(ctx context.Context, documentID, question string) (string, error) {
	if documentID == "" {
		return "", errors.New("document id cannot be empty")
	}
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question cannot be empty")
	}
	var out askResponse
	if err := c.doJSON(ctx, http.MethodPost, pathAskQuestion, askRequest{Question: question, PdfID: documentID}, &out); err != nil {
		return "", err
	}
	if out.Answer == nil {
		return "", fmt.Errorf("%w: missing answer", ErrMalformedResponse)
	}
	return *out.Answer, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, method, path, "", nil, out)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UnreachableError{Host: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	if rid := extractRequestID(resp); rid != "" {
		requestID = rid
	}
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		var raw map[string]any
		_ = json.Unmarshal(b, &raw)
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: requestID}
		apiErr.Detail = detailFrom(raw)
		return classifyAPIError(apiErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}
	return nil
}

// detailFrom pulls a readable message out of a FastAPI or generic error body.
func detailFrom(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	switch v := raw["detail"].(type) {
	case string:
		return v
	case []any:
		// 422 validation errors carry a list of {loc, msg, type}
		msgs := make([]string, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if msg, ok := m["msg"].(string); ok {
					msgs = append(msgs, msg)
				}
			}
		}
		return strings.Join(msgs, "; ")
	}
	if msg, ok := raw["message"].(string); ok {
		return msg
	}
	if v, ok := raw["error"].(map[string]any); ok {
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	if msg, ok := raw["error"].(string); ok {
		return msg
	}
	return ""
}

// classifyAPIError maps a generic APIError to a typed error.
func classifyAPIError(apiErr *APIError) error {
	sc := apiErr.StatusCode
	switch {
	case sc == http.StatusNotFound:
		return &NotFoundError{APIError: apiErr}
	case sc == http.StatusBadRequest || sc == http.StatusUnprocessableEntity:
		return &BadRequestError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

// extractRequestID pulls a request ID echoed back by the service, if any.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Correlation-Id"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
