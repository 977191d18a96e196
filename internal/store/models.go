package store

import (
	"errors"
	"fmt"
	"time"
)

// Book is a catalog entry. Every text field exists in Hindi and English; the
// optional fields are pointers so "absent" survives a round trip through any
// backend.
type Book struct {
	ID            int64    `json:"id"`
	Slug          string   `json:"slug"`
	TitleHi       string   `json:"title_hi"`
	TitleEn       string   `json:"title_en"`
	ShortHi       *string  `json:"short_hi"`
	ShortEn       *string  `json:"short_en"`
	DescriptionHi *string  `json:"description_hi"`
	DescriptionEn *string  `json:"description_en"`
	Price         float64  `json:"price"`
	ExTax         *float64 `json:"ex_tax"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	Language      string   `json:"language"`
	Stock         int      `json:"stock"`
	CoverURL      *string  `json:"cover_url"`
}

// BookInput carries every mutable Book field. Update is a full replace, so
// callers resend unchanged fields too.
type BookInput struct {
	Slug          string   `json:"slug"`
	TitleHi       string   `json:"title_hi"`
	TitleEn       string   `json:"title_en"`
	ShortHi       *string  `json:"short_hi"`
	ShortEn       *string  `json:"short_en"`
	DescriptionHi *string  `json:"description_hi"`
	DescriptionEn *string  `json:"description_en"`
	Price         float64  `json:"price"`
	ExTax         *float64 `json:"ex_tax"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	Language      string   `json:"language"`
	Stock         int      `json:"stock"`
	CoverURL      *string  `json:"cover_url"`
}

const (
	LanguageHindi   = "hindi"
	LanguageEnglish = "english"
	LanguageBoth    = "both"
)

const (
	SortPriceLow  = "price_low"
	SortPriceHigh = "price_high"
	SortNewest    = "newest"
)

// BookFilter describes a catalog query. All provided filters are conjunctive;
// Search matches any of the four bilingual text fields. Limit <= 0 disables
// pagination (callers always pass an explicit page size).
type BookFilter struct {
	Search   string
	Category string
	Language string
	MinPrice *float64
	MaxPrice *float64
	Sort     string
	Limit    int
	Offset   int
}

type Client struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type Admin struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// OrderItem is a snapshot of a book at order time. Later edits to the book
// never alter it.
type OrderItem struct {
	BookID   int64   `json:"bookId"`
	TitleHi  string  `json:"title_hi"`
	TitleEn  string  `json:"title_en"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

type Order struct {
	ID          int64       `json:"id"`
	ClientID    int64       `json:"client_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"total_amount"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OrderRequestItem is one requested line of a not-yet-placed order.
type OrderRequestItem struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// BookNotFoundError reports which requested book is missing during order
// placement. It satisfies errors.Is(err, ErrNotFound).
type BookNotFoundError struct {
	BookID int64
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %d not found", e.BookID)
}

func (e *BookNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError reports a line whose quantity exceeds the available
// stock. TitleEn is carried for the user-facing message.
type InsufficientStockError struct {
	BookID  int64
	TitleEn string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %q", e.TitleEn)
}
