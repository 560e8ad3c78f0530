// Package devserver is an in-memory reference backend implementing the REST
// surface the sync engine consumes. It backs the integration tests and the
// CLI's dev mode; it is not a production server.
package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const signingSecret = "dev-only-secret"

type userRecord struct {
	Email    string
	Name     string
	Role     string
	Band     string
	Stream   string
	Password string
}

type submissionRecord struct {
	ID          string
	UserID      string
	Month       string
	Status      string
	SubmittedAt *time.Time
	UpdatedAt   time.Time
	Draft       map[string]any
}

type definition struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Weight float64 `json:"weight,omitempty"`
	Pillar string  `json:"pillar,omitempty"`
	Band   string  `json:"band,omitempty"`
	Stream string  `json:"stream,omitempty"`
}

type Server struct {
	mu          sync.Mutex
	users       map[string]userRecord // by user id
	submissions map[string]*submissionRecord
	kpis        []definition
	values      []definition
	csrf        string
	idemSeen    map[string]string // Idempotency-Key -> submission id

	router chi.Router
}

func New() *Server {
	s := &Server{
		users: map[string]userRecord{
			"u-employee": {Email: "priya@example.com", Name: "Priya", Role: "Employee", Band: "B2", Stream: "Platform", Password: "password"},
			"u-manager":  {Email: "arjun@example.com", Name: "Arjun", Role: "Manager", Band: "B4", Stream: "Platform", Password: "password"},
		},
		submissions: map[string]*submissionRecord{},
		kpis: []definition{
			{ID: "K1", Title: "Delivery", Weight: 40, Band: "B2", Stream: "Platform"},
			{ID: "K2", Title: "Quality", Weight: 35, Band: "*", Stream: "general"},
			{ID: "K3", Title: "Collaboration", Weight: 25},
			{ID: "K4", Title: "Data Stewardship", Weight: 30, Band: "B2", Stream: "Data"},
		},
		values: []definition{
			{ID: "V1", Title: "Ownership", Pillar: "Culture"},
			{ID: "V2", Title: "Craft", Pillar: "Culture"},
			{ID: "V3", Title: "Candor", Pillar: "Culture"},
		},
		csrf:     uuid.NewString(),
		idemSeen: map[string]string{},
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Get("/auth/csrf", s.handleCSRF)
		r.Get("/definitions/kpis", s.handleDefinitions(func() []definition { return s.kpis }))
		r.Get("/definitions/values", s.handleDefinitions(func() []definition { return s.values }))
		r.Get("/reviews/monthly", s.handleGetMonthly)
		r.Put("/reviews/monthly/draft", s.handleSaveDraft)
		r.Post("/reviews/monthly/submit", s.handleSubmit)
		r.Post("/reviews/monthly/{id}/reject", s.handleReject)
	})
	s.router = router
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

func success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "malformed login body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if strings.EqualFold(u.Email, body.Email) && u.Password == body.Password {
			claims := jwt.MapClaims{
				"userId": id,
				"name":   u.Name,
				"role":   u.Role,
				"band":   u.Band,
				"stream": u.Stream,
				"exp":    time.Now().Add(12 * time.Hour).Unix(),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
			if err != nil {
				fail(w, http.StatusInternalServerError, "internal", "token signing failed")
				return
			}
			success(w, map[string]string{"token": token})
			return
		}
	}
	fail(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	s.mu.Lock()
	token := s.csrf
	s.mu.Unlock()
	success(w, map[string]string{"token": token})
}

// authenticate verifies the bearer token and returns the caller's user id.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		fail(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		return []byte(signingSecret), nil
	})
	if err != nil {
		fail(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return "", false
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return "", false
	}
	return userID, true
}

func (s *Server) requireCSRF(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	token := s.csrf
	s.mu.Unlock()
	if r.Header.Get("X-CSRF-Token") != token {
		fail(w, http.StatusForbidden, "csrf", "missing or stale csrf token")
		return false
	}
	return true
}

func (s *Server) handleDefinitions(list func() []definition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				limit = v
			}
		}
		offset := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			v, err := strconv.Atoi(strings.TrimPrefix(cursor, "c"))
			if err != nil {
				fail(w, http.StatusBadRequest, "bad_cursor", "unknown cursor")
				return
			}
			offset = v
		}

		s.mu.Lock()
		all := list()
		s.mu.Unlock()

		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		if offset > len(all) {
			offset = len(all)
		}
		page := map[string]any{"items": all[offset:end]}
		if end < len(all) {
			page["nextCursor"] = "c" + strconv.Itoa(end)
		} else {
			page["nextCursor"] = nil
		}
		success(w, page)
	}
}

func submissionKey(userID, month string) string { return userID + "/" + month }

func (s *Server) handleGetMonthly(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	month := r.URL.Query().Get("month")
	s.mu.Lock()
	rec := s.submissions[submissionKey(userID, month)]
	s.mu.Unlock()
	if rec == nil {
		success(w, nil)
		return
	}
	success(w, rec.body())
}

func (rec *submissionRecord) body() map[string]any {
	body := map[string]any{
		"id":        rec.ID,
		"month":     rec.Month,
		"status":    rec.Status,
		"updatedAt": rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.SubmittedAt != nil {
		body["submittedAt"] = rec.SubmittedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range rec.Draft {
		body[k] = v
	}
	return body
}

func (s *Server) upsert(userID string, draft map[string]any) (*submissionRecord, bool) {
	month, _ := draft["month"].(string)
	key := submissionKey(userID, month)
	rec := s.submissions[key]
	if rec == nil {
		rec = &submissionRecord{
			ID:     uuid.NewString(),
			UserID: userID,
			Month:  month,
			Status: "DRAFT",
		}
		s.submissions[key] = rec
	}
	if rec.SubmittedAt != nil || isTerminal(rec.Status) {
		return rec, false
	}
	delete(draft, "month")
	rec.Draft = draft
	rec.UpdatedAt = time.Now()
	return rec, true
}

func isTerminal(status string) bool {
	switch strings.ToUpper(status) {
	case "SUBMITTED", "APPROVED", "COMPLETED", "FINAL":
		return true
	}
	return false
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r) {
		return
	}
	var draft map[string]any
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "malformed draft body")
		return
	}
	s.mu.Lock()
	rec, ok := s.upsert(userID, draft)
	s.mu.Unlock()
	if !ok {
		fail(w, http.StatusConflict, "locked", "submission is already finalized")
		return
	}
	success(w, map[string]string{"id": rec.ID})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r) {
		return
	}
	var draft map[string]any
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "malformed submit body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replay a completed submit instead of double-finalizing.
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		if id, seen := s.idemSeen[key]; seen {
			for _, rec := range s.submissions {
				if rec.ID == id {
					success(w, rec.body())
					return
				}
			}
		}
	}

	rec, updated := s.upsert(userID, draft)
	if !updated {
		fail(w, http.StatusConflict, "locked", "submission is already finalized")
		return
	}
	now := time.Now()
	rec.Status = "SUBMITTED"
	rec.SubmittedAt = &now
	rec.UpdatedAt = now
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		s.idemSeen[key] = rec.ID
	}
	success(w, rec.body())
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.requireCSRF(w, r) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[userID].Role != "Manager" {
		fail(w, http.StatusForbidden, "forbidden", "only managers can reject")
		return
	}
	id := chi.URLParam(r, "id")
	for _, rec := range s.submissions {
		if rec.ID == id {
			rec.Status = "NEEDS_REVIEW"
			rec.SubmittedAt = nil
			rec.UpdatedAt = time.Now()
			success(w, rec.body())
			return
		}
	}
	fail(w, http.StatusNotFound, "not_found", "submission not found")
}
