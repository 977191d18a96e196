// Package app wires the HTTP surface to the catalog, order, and credential
// layers. All dependencies come in through the constructor so the whole stack
// runs against any store backend, including the in-memory one used in tests.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pustak/api/internal/accounts"
	"pustak/api/internal/auth"
	"pustak/api/internal/export"
	"pustak/api/internal/gitrepo"
	"pustak/api/internal/media"
	"pustak/api/internal/search"
	"pustak/api/internal/store"
)

// CatalogStore answers book queries and admin mutations.
type CatalogStore interface {
	ListBooks(ctx context.Context, filter store.BookFilter) ([]store.Book, int, error)
	GetBook(ctx context.Context, id int64) (store.Book, error)
	GetBookBySlug(ctx context.Context, slug string) (store.Book, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateBook(ctx context.Context, in store.BookInput) (store.Book, error)
	UpdateBook(ctx context.Context, id int64, in store.BookInput) (store.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// OrderStore places and reads orders.
type OrderStore interface {
	PlaceOrder(ctx context.Context, clientID int64, items []store.OrderRequestItem) (store.Order, error)
	ListOrdersByClient(ctx context.Context, clientID int64) ([]store.Order, error)
	GetOrder(ctx context.Context, id int64) (store.Order, error)
}

// Historian exposes the catalog audit journal. Only the flat-file backend
// implements it; other backends report an empty history.
type Historian interface {
	History(ctx context.Context, limit int) ([]gitrepo.CommitInfo, error)
}

type Service struct {
	catalog  CatalogStore
	orders   OrderStore
	accounts *accounts.Service
	searcher *search.Service
	uploader *media.Uploader
	history  Historian

	jwtSecret []byte
	tokenTTL  time.Duration

	adminUsername string
	adminPassword string
}

// Options carries the optional collaborators; any field may be nil.
type Options struct {
	Searcher *search.Service
	Uploader *media.Uploader
	History  Historian

	AdminUsername string
	AdminPassword string
}

func NewService(catalog CatalogStore, orders OrderStore, accountsSvc *accounts.Service, jwtSecret string, tokenTTL time.Duration, opts Options) *Service {
	return &Service{
		catalog:       catalog,
		orders:        orders,
		accounts:      accountsSvc,
		searcher:      opts.Searcher,
		uploader:      opts.Uploader,
		history:       opts.History,
		jwtSecret:     []byte(jwtSecret),
		tokenTTL:      tokenTTL,
		adminUsername: opts.AdminUsername,
		adminPassword: opts.AdminPassword,
	}
}

// Bootstrap prepares a fresh deployment: seeds the configured admin account
// and fills the search index from the catalog.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.accounts.EnsureAdmin(ctx, s.adminUsername, s.adminPassword); err != nil {
		return err
	}
	if s.searcher != nil {
		s.searcher.Reindex(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.catalog.Ping(ctx)
}

// Catalog reads

func (s *Service) ListBooks(ctx context.Context, filter store.BookFilter) ([]store.Book, int, error) {
	if s.searcher != nil {
		return s.searcher.ListBooks(ctx, filter)
	}
	return s.catalog.ListBooks(ctx, filter)
}

func (s *Service) GetBook(ctx context.Context, id int64) (store.Book, error) {
	return s.catalog.GetBook(ctx, id)
}

func (s *Service) GetBookBySlug(ctx context.Context, slug string) (store.Book, error) {
	return s.catalog.GetBookBySlug(ctx, slug)
}

func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.catalog.ListCategories(ctx)
}

// Catalog mutations (admin only; role enforcement happens at the HTTP layer)

func (s *Service) CreateBook(ctx context.Context, in store.BookInput) (store.Book, error) {
	if errs := validateBookInput(in); len(errs) > 0 {
		return store.Book{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid book", errs)
	}
	book, err := s.catalog.CreateBook(ctx, in)
	if err != nil {
		return store.Book{}, err
	}
	if s.searcher != nil {
		s.searcher.IndexBook(book)
	}
	return book, nil
}

func (s *Service) UpdateBook(ctx context.Context, id int64, in store.BookInput) (store.Book, error) {
	if errs := validateBookInput(in); len(errs) > 0 {
		return store.Book{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid book", errs)
	}
	book, err := s.catalog.UpdateBook(ctx, id, in)
	if err != nil {
		return store.Book{}, err
	}
	if s.searcher != nil {
		s.searcher.IndexBook(book)
	}
	return book, nil
}

func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	if err := s.catalog.DeleteBook(ctx, id); err != nil {
		return err
	}
	if s.searcher != nil {
		s.searcher.DeleteBook(id)
	}
	return nil
}

// UploadCover stores a cover image and points the book at it.
func (s *Service) UploadCover(ctx context.Context, bookID int64, contentType string, body io.Reader, size int64) (store.Book, error) {
	if s.uploader == nil {
		return store.Book{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Cover storage not configured", nil)
	}
	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return store.Book{}, err
	}
	url, err := s.uploader.UploadCover(ctx, bookID, contentType, body, size)
	if err != nil {
		return store.Book{}, domainError(http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
	}
	in := inputFromBook(book)
	in.CoverURL = &url
	updated, err := s.catalog.UpdateBook(ctx, bookID, in)
	if err != nil {
		return store.Book{}, err
	}
	if s.searcher != nil {
		s.searcher.IndexBook(updated)
	}
	return updated, nil
}

// CatalogHistory lists journal commits for backends that keep one.
func (s *Service) CatalogHistory(ctx context.Context, limit int) ([]gitrepo.CommitInfo, error) {
	if s.history == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	return s.history.History(ctx, limit)
}

// Orders

func (s *Service) PlaceOrder(ctx context.Context, clientID int64, items []store.OrderRequestItem) (store.Order, error) {
	if errs := validateOrderItems(items); len(errs) > 0 {
		return store.Order{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid order", errs)
	}
	order, err := s.orders.PlaceOrder(ctx, clientID, items)
	if err != nil {
		var stockErr *store.InsufficientStockError
		if errors.As(err, &stockErr) {
			return store.Order{}, domainError(http.StatusBadRequest, "INSUFFICIENT_STOCK",
				fmt.Sprintf("Not enough stock for %q", stockErr.TitleEn), nil)
		}
		var missing *store.BookNotFoundError
		if errors.As(err, &missing) {
			return store.Order{}, domainError(http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("Book %d not found", missing.BookID), nil)
		}
		return store.Order{}, err
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, clientID int64) ([]store.Order, error) {
	return s.orders.ListOrdersByClient(ctx, clientID)
}

// GetOrderForClient loads an order, hiding orders owned by other clients
// behind the same not-found as genuinely absent ones.
func (s *Service) GetOrderForClient(ctx context.Context, clientID, orderID int64) (store.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return store.Order{}, err
	}
	if order.ClientID != clientID {
		return store.Order{}, store.ErrNotFound
	}
	return order, nil
}

// Invoice renders an order as a PDF invoice.
func (s *Service) Invoice(ctx context.Context, clientID, orderID int64) (*export.Result, error) {
	order, err := s.GetOrderForClient(ctx, clientID, orderID)
	if err != nil {
		return nil, err
	}
	client, err := s.accounts.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	inv := export.Invoice{
		OrderID:     order.ID,
		ClientName:  client.Name,
		ClientEmail: client.Email,
		PlacedAt:    order.CreatedAt,
		TotalAmount: order.TotalAmount,
	}
	for _, item := range order.Items {
		inv.Lines = append(inv.Lines, export.InvoiceLine{
			TitleHi:  item.TitleHi,
			TitleEn:  item.TitleEn,
			Price:    item.Price,
			Quantity: item.Quantity,
			Total:    item.Total,
		})
	}

	result, err := export.InvoicePDF(inv)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export not available", nil)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Accounts and tokens

type AuthResult struct {
	Token string
	Name  string
	ID    int64
}

func (s *Service) SignUpClient(ctx context.Context, name, email, password string) (AuthResult, error) {
	if errs := validateSignup(name, email, password); len(errs) > 0 {
		return AuthResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid signup", errs)
	}
	client, err := s.accounts.SignUpClient(ctx, name, email, password)
	if errors.Is(err, store.ErrEmailTaken) {
		return AuthResult{}, domainError(http.StatusBadRequest, "EMAIL_TAKEN", "Email already registered", nil)
	}
	if err != nil {
		return AuthResult{}, err
	}
	return s.clientAuthResult(client)
}

func (s *Service) LoginClient(ctx context.Context, email, password string) (AuthResult, error) {
	if errs := validateClientLogin(email, password); len(errs) > 0 {
		return AuthResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid login", errs)
	}
	client, err := s.accounts.AuthenticateClient(ctx, email, password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		return AuthResult{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if err != nil {
		return AuthResult{}, err
	}
	return s.clientAuthResult(client)
}

func (s *Service) LoginAdmin(ctx context.Context, username, password string) (AuthResult, error) {
	if errs := validateAdminLogin(username, password); len(errs) > 0 {
		return AuthResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid login", errs)
	}
	admin, err := s.accounts.AuthenticateAdmin(ctx, username, password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		return AuthResult{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if err != nil {
		return AuthResult{}, err
	}
	token, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:      admin.ID,
		Role:     auth.RoleAdmin,
		Username: admin.Username,
		Exp:      time.Now().Add(s.tokenTTL).Unix(),
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Name: admin.Username, ID: admin.ID}, nil
}

func (s *Service) clientAuthResult(client store.Client) (AuthResult, error) {
	token, err := auth.IssueToken(s.jwtSecret, auth.Claims{
		Sub:   client.ID,
		Role:  auth.RoleClient,
		Email: client.Email,
		Exp:   time.Now().Add(s.tokenTTL).Unix(),
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Name: client.Name, ID: client.ID}, nil
}

// VerifyToken decodes a bearer token into claims.
func (s *Service) VerifyToken(token string) (auth.Claims, error) {
	return auth.ParseToken(s.jwtSecret, token)
}

func inputFromBook(b store.Book) store.BookInput {
	return store.BookInput{
		Slug:          b.Slug,
		TitleHi:       b.TitleHi,
		TitleEn:       b.TitleEn,
		ShortHi:       b.ShortHi,
		ShortEn:       b.ShortEn,
		DescriptionHi: b.DescriptionHi,
		DescriptionEn: b.DescriptionEn,
		Price:         b.Price,
		ExTax:         b.ExTax,
		Category:      b.Category,
		Tags:          b.Tags,
		Language:      b.Language,
		Stock:         b.Stock,
		CoverURL:      b.CoverURL,
	}
}
