// Package search provides catalog text search, backed by Meilisearch when one
// is configured and healthy, with the data store's own filtering as fallback.
package search

import (
	"context"

	"pustak/api/internal/store"
)

// BookRecord is the shape pushed into the search index. It mirrors the
// searchable and filterable slice of a catalog book.
type BookRecord struct {
	ID            int64   `json:"id"`
	Slug          string  `json:"slug"`
	TitleHi       string  `json:"title_hi"`
	TitleEn       string  `json:"title_en"`
	DescriptionHi string  `json:"description_hi"`
	DescriptionEn string  `json:"description_en"`
	Category      string  `json:"category"`
	Language      string  `json:"language"`
	Price         float64 `json:"price"`
}

// Catalog is the slice of the data layer the search service reads from.
type Catalog interface {
	ListBooks(ctx context.Context, filter store.BookFilter) ([]store.Book, int, error)
	GetBook(ctx context.Context, id int64) (store.Book, error)
}

func recordFromBook(b store.Book) BookRecord {
	r := BookRecord{
		ID:       b.ID,
		Slug:     b.Slug,
		TitleHi:  b.TitleHi,
		TitleEn:  b.TitleEn,
		Category: b.Category,
		Language: b.Language,
		Price:    b.Price,
	}
	if b.DescriptionHi != nil {
		r.DescriptionHi = *b.DescriptionHi
	}
	if b.DescriptionEn != nil {
		r.DescriptionEn = *b.DescriptionEn
	}
	return r
}
