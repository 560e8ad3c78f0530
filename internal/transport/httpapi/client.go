package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/submission"
	"reviewsync/internal/platform/session"
)

const apiPrefix = "/api/v1"

// Client is the REST client for the review portal backend. It implements
// submission.API. Mutating requests carry the CSRF token and a fresh
// Idempotency-Key so retried writes are safe server-side.
type Client struct {
	baseURL string
	http    *http.Client
	sess    *session.Session

	mu   sync.Mutex
	csrf string
}

func NewClient(baseURL string, sess *session.Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		sess:    sess,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login exchanges credentials for a bearer token. No session exists yet, so
// this is the one call made outside a Client.
func Login(ctx context.Context, baseURL, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+apiPrefix+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := decodeEnvelope(resp)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Token == "" {
		return "", &Error{Status: resp.StatusCode, Message: "login response missing token"}
	}
	return out.Token, nil
}

func (c *Client) FetchMonthlySubmission(ctx context.Context, month string) (*submission.Remote, error) {
	q := url.Values{"month": {month}}
	data, err := c.do(ctx, http.MethodGet, "/reviews/monthly", q, nil, false)
	if err != nil {
		return nil, err
	}
	raw, ok := decodeObject(data)
	if !ok {
		// No record yet for this month.
		return nil, nil
	}
	remote := submission.DecodeRemote(raw)
	return &remote, nil
}

func (c *Client) SaveDraft(ctx context.Context, p submission.Payload) error {
	_, err := c.do(ctx, http.MethodPut, "/reviews/monthly/draft", nil, p, true)
	return err
}

func (c *Client) SubmitFinal(ctx context.Context, p submission.Payload) (submission.Meta, error) {
	data, err := c.do(ctx, http.MethodPost, "/reviews/monthly/submit", nil, p, true)
	if err != nil {
		return submission.Meta{}, err
	}
	raw, ok := decodeObject(data)
	if !ok {
		return submission.Meta{}, &Error{Message: "submit response missing submission"}
	}
	return submission.DecodeRemote(raw).Meta, nil
}

// RejectSubmission is the manager-side reopen action: the server clears the
// terminal status so the employee's next hydration is editable again.
func (c *Client) RejectSubmission(ctx context.Context, submissionID string) error {
	path := "/reviews/monthly/" + url.PathEscape(submissionID) + "/reject"
	_, err := c.do(ctx, http.MethodPost, path, nil, nil, true)
	return err
}

func (c *Client) FetchDefinitionsPage(ctx context.Context, kind catalog.Kind, limit int, cursor string) (catalog.Page, error) {
	path := "/definitions/kpis"
	if kind == catalog.KindValue {
		path = "/definitions/values"
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	data, err := c.do(ctx, http.MethodGet, path, q, nil, false)
	if err != nil {
		return catalog.Page{}, err
	}
	var body struct {
		Items      []any   `json:"items"`
		NextCursor *string `json:"nextCursor"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return catalog.Page{}, &Error{Message: "malformed definitions page"}
	}
	next := ""
	if body.NextCursor != nil {
		next = *body.NextCursor
	}
	return catalog.DecodePage(body.Items, next), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, mutating bool) (json.RawMessage, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.sess.Token())
	if mutating {
		csrf, err := c.ensureCSRF(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-CSRF-Token", csrf)
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, &Error{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.sess.Expire()
		return nil, &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "session expired"}
	}
	return decodeEnvelope(resp)
}

// ensureCSRF lazily fetches the anti-forgery token once per client.
func (c *Client) ensureCSRF(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.csrf != "" {
		token := c.csrf
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	data, err := c.do(ctx, http.MethodGet, "/auth/csrf", nil, nil, false)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Token == "" {
		return "", &Error{Message: "csrf response missing token"}
	}
	c.mu.Lock()
	c.csrf = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

func decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "malformed response body"}
	}
	if !env.Success && env.Error != nil {
		return nil, &Error{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return env.Data, nil
}

// decodeObject unwraps a data field into a generic object, reporting false
// for JSON null or absent bodies.
func decodeObject(data json.RawMessage) (map[string]any, bool) {
	if len(data) == 0 || string(data) == "null" {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	return raw, true
}
