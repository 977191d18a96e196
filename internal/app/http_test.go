package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pustak/api/internal/accounts"
	"pustak/api/internal/store"
)

func newTestServer(t *testing.T) (*HTTPServer, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	service := NewService(mem, mem, accounts.NewService(mem), "test-secret", time.Hour, Options{
		AdminUsername: "admin",
		AdminPassword: "adminpass",
	})
	if err := service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return NewHTTPServer(service, "*"), mem
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func adminToken(t *testing.T, server *HTTPServer) string {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/admin/login", "", map[string]string{
		"username": "admin", "password": "adminpass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: %d %s", rec.Code, rec.Body.String())
	}
	return decodeResponse(t, rec)["token"].(string)
}

func clientToken(t *testing.T, server *HTTPServer, email string) string {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/client/signup", "", map[string]string{
		"name": "Asha", "email": email, "password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	return decodeResponse(t, rec)["token"].(string)
}

func createBook(t *testing.T, server *HTTPServer, token string, in store.BookInput) store.Book {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/api/v1/admin/books", token, in)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Book store.Book `json:"book"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return payload.Book
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if decodeResponse(t, rec)["ok"] != true {
		t.Fatalf("health body: %s", rec.Body.String())
	}
}

func TestReady(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: %d %s", rec.Code, rec.Body.String())
	}
}

func TestListBooksContract(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)

	prices := []float64{199, 185, 300}
	for i, price := range prices {
		createBook(t, server, admin, store.BookInput{
			Slug: fmt.Sprintf("fiction-%d", i), TitleHi: "किताब", TitleEn: fmt.Sprintf("Fiction %d", i),
			Price: price, Category: "fiction", Language: store.LanguageHindi, Stock: 5,
		})
	}
	createBook(t, server, admin, store.BookInput{
		Slug: "bio", TitleHi: "जीवनी", TitleEn: "A Life",
		Price: 500, Category: "biography", Language: store.LanguageEnglish, Stock: 5,
	})

	rec := doJSON(t, server, http.MethodGet, "/api/v1/books?category=fiction&sort=price_low&limit=2&page=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Books      []store.Book `json:"books"`
		TotalCount int          `json:"totalCount"`
		Page       int          `json:"page"`
		Limit      int          `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// three fiction books priced 199/185/300: first page of price_low is [185, 199]
	if payload.TotalCount != 3 {
		t.Fatalf("totalCount = %d, want 3", payload.TotalCount)
	}
	if len(payload.Books) != 2 || payload.Books[0].Price != 185 || payload.Books[1].Price != 199 {
		t.Fatalf("page = %+v", payload.Books)
	}
	if payload.Page != 1 || payload.Limit != 2 {
		t.Fatalf("page/limit echo = %d/%d", payload.Page, payload.Limit)
	}

	// default limit applies when none is given
	rec = doJSON(t, server, http.MethodGet, "/api/v1/books", "", nil)
	if got := decodeResponse(t, rec)["limit"]; got != float64(defaultPublicPageSize) {
		t.Fatalf("default limit = %v", got)
	}

	// garbage price filter is ignored, not an error
	rec = doJSON(t, server, http.MethodGet, "/api/v1/books?minPrice=abc", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("garbage minPrice: %d", rec.Code)
	}
	if got := decodeResponse(t, rec)["totalCount"]; got != float64(4) {
		t.Fatalf("totalCount with ignored filter = %v", got)
	}
}

func TestGetBookRoutes(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)
	book := createBook(t, server, admin, store.BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan",
		Price: 185, Category: "fiction", Language: store.LanguageHindi, Stock: 5,
	})

	rec := doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by id: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/books/slug/godan", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by slug: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/books/9999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing book: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/books/categories", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories: %d", rec.Code)
	}
	if body := rec.Body.String(); !bytes.Contains([]byte(body), []byte("fiction")) {
		t.Fatalf("categories body: %s", body)
	}
}

func TestSignupValidationAndConflict(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/client/signup", "", map[string]string{
		"name": "", "email": "not-an-email", "password": "123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid signup: %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	errs, ok := payload["errors"].([]any)
	if !ok || len(errs) != 3 {
		t.Fatalf("errors = %v", payload)
	}

	clientToken(t, server, "asha@example.com")
	rec = doJSON(t, server, http.MethodPost, "/api/v1/client/signup", "", map[string]string{
		"name": "Other", "email": "asha@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup: %d %s", rec.Code, rec.Body.String())
	}
	if decodeResponse(t, rec)["code"] != "EMAIL_TAKEN" {
		t.Fatalf("duplicate signup body: %s", rec.Body.String())
	}
}

func TestLoginFailures(t *testing.T) {
	server, _ := newTestServer(t)
	clientToken(t, server, "asha@example.com")

	rec := doJSON(t, server, http.MethodPost, "/api/v1/client/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/admin/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong admin password: %d", rec.Code)
	}
}

func TestRoleGates(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)
	client := clientToken(t, server, "asha@example.com")

	// no token at all is 401
	rec := doJSON(t, server, http.MethodGet, "/api/v1/client/orders", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	// garbage token is 401
	rec = doJSON(t, server, http.MethodGet, "/api/v1/client/orders", "not.a.token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", rec.Code)
	}

	// valid token with the wrong role is 403, both directions
	rec = doJSON(t, server, http.MethodGet, "/api/v1/admin/books", client, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client on admin route: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodGet, "/api/v1/client/orders", admin, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("admin on client route: %d", rec.Code)
	}
}

func TestPlaceOrderFlow(t *testing.T) {
	server, mem := newTestServer(t)
	admin := adminToken(t, server)
	client := clientToken(t, server, "asha@example.com")

	b1 := createBook(t, server, admin, store.BookInput{
		Slug: "b1", TitleHi: "एक", TitleEn: "One",
		Price: 100, Category: "fiction", Language: store.LanguageHindi, Stock: 2,
	})
	b2 := createBook(t, server, admin, store.BookInput{
		Slug: "b2", TitleHi: "दो", TitleEn: "Two",
		Price: 50, Category: "fiction", Language: store.LanguageHindi, Stock: 0,
	})

	// B2 has no stock: the whole order fails and B1 stays untouched
	rec := doJSON(t, server, http.MethodPost, "/api/v1/client/order", client, map[string]any{
		"items": []map[string]any{
			{"bookId": b1.ID, "quantity": 1},
			{"bookId": b2.ID, "quantity": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("insufficient stock: %d %s", rec.Code, rec.Body.String())
	}
	if decodeResponse(t, rec)["code"] != "INSUFFICIENT_STOCK" {
		t.Fatalf("body: %s", rec.Body.String())
	}
	got, _ := mem.GetBook(context.Background(), b1.ID)
	if got.Stock != 2 {
		t.Fatalf("b1 stock after failed order = %d", got.Stock)
	}

	// valid single-item order
	rec = doJSON(t, server, http.MethodPost, "/api/v1/client/order", client, map[string]any{
		"items": []map[string]any{{"bookId": b1.ID, "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place order: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Order store.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if payload.Order.TotalAmount != 200 {
		t.Fatalf("order total = %v", payload.Order.TotalAmount)
	}
	got, _ = mem.GetBook(context.Background(), b1.ID)
	if got.Stock != 0 {
		t.Fatalf("b1 stock after order = %d", got.Stock)
	}

	// empty order is a validation failure
	rec = doJSON(t, server, http.MethodPost, "/api/v1/client/order", client, map[string]any{
		"items": []map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty order: %d", rec.Code)
	}
	if _, ok := decodeResponse(t, rec)["errors"]; !ok {
		t.Fatalf("empty order body: %s", rec.Body.String())
	}

	// the client sees exactly the one order
	rec = doJSON(t, server, http.MethodGet, "/api/v1/client/orders", client, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders: %d", rec.Code)
	}
	var orders struct {
		Orders []store.Order `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	if len(orders.Orders) != 1 {
		t.Fatalf("orders = %v", orders.Orders)
	}
}

func TestOrderOwnership(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)
	asha := clientToken(t, server, "asha@example.com")
	ravi := clientToken(t, server, "ravi@example.com")

	book := createBook(t, server, admin, store.BookInput{
		Slug: "b", TitleHi: "क", TitleEn: "B",
		Price: 10, Category: "fiction", Language: store.LanguageHindi, Stock: 5,
	})
	rec := doJSON(t, server, http.MethodPost, "/api/v1/client/order", asha, map[string]any{
		"items": []map[string]any{{"bookId": book.ID, "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place order: %d", rec.Code)
	}
	var payload struct {
		Order store.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := fmt.Sprintf("/api/v1/client/orders/%d", payload.Order.ID)
	if rec := doJSON(t, server, http.MethodGet, path, asha, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner read: %d", rec.Code)
	}
	// another client's order reads as not found, not forbidden
	if rec := doJSON(t, server, http.MethodGet, path, ravi, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign read: %d", rec.Code)
	}
}

func TestAdminBookCRUD(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)

	// invalid payload is rejected with field messages
	rec := doJSON(t, server, http.MethodPost, "/api/v1/admin/books", admin, store.BookInput{
		Slug: "", TitleHi: "", TitleEn: "X", Price: -5, Category: "fiction", Language: "klingon", Stock: -1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid book: %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := decodeResponse(t, rec)["errors"]; !ok {
		t.Fatalf("invalid book body: %s", rec.Body.String())
	}

	book := createBook(t, server, admin, store.BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan",
		Price: 185, Category: "fiction", Language: store.LanguageHindi, Stock: 5,
	})

	rec = doJSON(t, server, http.MethodPut, fmt.Sprintf("/api/v1/admin/books/%d", book.ID), admin, store.BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan (2nd ed)",
		Price: 210, Category: "fiction", Language: store.LanguageBoth, Stock: 8,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, fmt.Sprintf("/api/v1/admin/books/%d", book.ID), admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodDelete, fmt.Sprintf("/api/v1/admin/books/%d", book.ID), admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rec.Code)
	}
}

func TestCatalogHistoryEmptyWithoutJournal(t *testing.T) {
	server, _ := newTestServer(t)
	admin := adminToken(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/admin/catalog/history", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	history, ok := decodeResponse(t, rec)["history"].([]any)
	if !ok || len(history) != 0 {
		t.Fatalf("history body: %s", rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/api/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", rec.Code)
	}
}
