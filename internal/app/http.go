package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pustak/api/internal/auth"
	"pustak/api/internal/store"
)

const (
	defaultPublicPageSize = 12
	defaultAdminPageSize  = 50
	maxCoverBytes         = 5 << 20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	rest := parts[2:]

	switch rest[0] {
	case "books":
		s.handleBooks(w, r, rest[1:])
	case "client":
		s.handleClient(w, r, rest[1:])
	case "admin":
		s.handleAdmin(w, r, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// Public catalog routes

func (s *HTTPServer) handleBooks(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case len(rest) == 0:
		s.handleListBooks(w, r, defaultPublicPageSize)
	case len(rest) == 1 && rest[0] == "categories":
		categories, err := s.service.ListCategories(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	case len(rest) == 2 && rest[0] == "slug":
		book, err := s.service.GetBookBySlug(r.Context(), rest[1])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"book": book})
	case len(rest) == 1:
		id, ok := parseID(rest[0])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		book, err := s.service.GetBook(r.Context(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"book": book})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleListBooks(w http.ResponseWriter, r *http.Request, defaultLimit int) {
	filter, page, limit := filterFromQuery(r, defaultLimit)
	books, total, err := s.service.ListBooks(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books":      books,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

// Client routes

func (s *HTTPServer) handleClient(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// unauthenticated client routes
	if r.Method == http.MethodPost && len(rest) == 1 {
		switch rest[0] {
		case "signup":
			var body struct {
				Name     string `json:"name"`
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SignUpClient(r.Context(), body.Name, body.Email, body.Password)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"token": result.Token, "name": result.Name, "id": result.ID})
			return
		case "login":
			var body struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.LoginClient(r.Context(), body.Email, body.Password)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"token": result.Token, "name": result.Name, "id": result.ID})
			return
		}
	}

	claims, ok := s.requireRole(w, r, auth.RoleClient)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "order":
		var body struct {
			Items []store.OrderRequestItem `json:"items"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		order, err := s.service.PlaceOrder(r.Context(), claims.Sub, body.Items)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"order": order})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "orders":
		orders, err := s.service.ListOrders(r.Context(), claims.Sub)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "orders":
		id, ok := parseID(rest[1])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		order, err := s.service.GetOrderForClient(r.Context(), claims.Sub, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})

	case r.Method == http.MethodGet && len(rest) == 3 && rest[0] == "orders" && rest[2] == "invoice":
		id, ok := parseID(rest[1])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		result, err := s.service.Invoice(r.Context(), claims.Sub, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// Admin routes

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "login" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.LoginAdmin(r.Context(), body.Username, body.Password)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": result.Token, "name": result.Name, "id": result.ID})
		return
	}

	if _, ok := s.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	switch {
	case len(rest) == 1 && rest[0] == "books" && r.Method == http.MethodGet:
		s.handleListBooks(w, r, defaultAdminPageSize)

	case len(rest) == 1 && rest[0] == "books" && r.Method == http.MethodPost:
		var in store.BookInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		book, err := s.service.CreateBook(r.Context(), in)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"book": book})

	case len(rest) == 2 && rest[0] == "books":
		id, ok := parseID(rest[1])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		switch r.Method {
		case http.MethodGet:
			book, err := s.service.GetBook(r.Context(), id)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"book": book})
		case http.MethodPut:
			var in store.BookInput
			if err := decodeBody(r, &in); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			book, err := s.service.UpdateBook(r.Context(), id, in)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"book": book})
		case http.MethodDelete:
			if err := s.service.DeleteBook(r.Context(), id); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}

	case len(rest) == 3 && rest[0] == "books" && rest[2] == "cover" && r.Method == http.MethodPost:
		id, ok := parseID(rest[1])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		contentType := r.Header.Get("Content-Type")
		body := http.MaxBytesReader(w, r.Body, maxCoverBytes)
		book, err := s.service.UploadCover(r.Context(), id, contentType, body, r.ContentLength)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"book": book})

	case len(rest) == 2 && rest[0] == "catalog" && rest[1] == "history" && r.Method == http.MethodGet:
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		history, err := s.service.CatalogHistory(r.Context(), limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// requireRole authenticates the request and checks the role. A missing or
// unverifiable token is a 401; a valid token for the wrong role is a 403.
func (s *HTTPServer) requireRole(w http.ResponseWriter, r *http.Request, role string) (auth.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return auth.Claims{}, false
	}
	claims, err := s.service.VerifyToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", nil)
		return auth.Claims{}, false
	}
	if !auth.HasRole(claims, role) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return auth.Claims{}, false
	}
	return claims, true
}

// filterFromQuery parses catalog query parameters. Unparseable numeric values
// fall back to defaults rather than erroring; price bounds are ignored unless
// they are finite and non-negative.
func filterFromQuery(r *http.Request, defaultLimit int) (store.BookFilter, int, int) {
	q := r.URL.Query()

	filter := store.BookFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
		Language: strings.TrimSpace(q.Get("language")),
		Sort:     strings.TrimSpace(q.Get("sort")),
	}

	if raw := strings.TrimSpace(q.Get("minPrice")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			filter.MinPrice = &v
		}
	}
	if raw := strings.TrimSpace(q.Get("maxPrice")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			filter.MaxPrice = &v
		}
	}

	limit := defaultLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	page := 1
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	return filter, page, limit
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if msgs, ok := details.([]string); ok && status == http.StatusBadRequest {
		writeJSON(w, status, map[string]any{"errors": msgs})
		return
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Middleware and helpers

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
