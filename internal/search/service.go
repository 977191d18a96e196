package search

import (
	"context"
	"log"

	"pustak/api/internal/store"
)

// Service is the facade the catalog handlers call. Free-text queries go to
// Meilisearch when it is healthy; everything else, and every fallback, is the
// data store's own filter pipeline, so results stay consistent either way.
type Service struct {
	meili   *Meili
	catalog Catalog
}

// NewService creates the search facade. meili may be nil when no search server
// is configured.
func NewService(meili *Meili, catalog Catalog) *Service {
	return &Service{meili: meili, catalog: catalog}
}

// ListBooks answers a catalog query. Only queries with free text involve the
// search index; its hits are hydrated from the data store so the response
// carries full book records, never index projections.
func (s *Service) ListBooks(ctx context.Context, filter store.BookFilter) ([]store.Book, int, error) {
	if filter.Search == "" || s.meili == nil || !s.meili.Healthy() {
		return s.catalog.ListBooks(ctx, filter)
	}

	ids, total, err := s.meili.Search(filter)
	if err != nil {
		log.Printf("search: meilisearch error, falling back to store: %v", err)
		return s.catalog.ListBooks(ctx, filter)
	}

	books := make([]store.Book, 0, len(ids))
	for _, id := range ids {
		book, err := s.catalog.GetBook(ctx, id)
		if err != nil {
			// Index lag: the book was deleted after indexing. The page can
			// under-fill against the estimated total; the next reindex heals it.
			continue
		}
		books = append(books, book)
	}
	return books, total, nil
}

// IndexBook pushes one book into the index, fire-and-forget.
func (s *Service) IndexBook(book store.Book) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := recordFromBook(book)
	go func() {
		if err := s.meili.IndexBook(record); err != nil {
			log.Printf("search: index book %d: %v", record.ID, err)
		}
	}()
}

// DeleteBook removes one book from the index, fire-and-forget.
func (s *Service) DeleteBook(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBook(id); err != nil {
			log.Printf("search: delete book %d: %v", id, err)
		}
	}()
}

// Reindex pushes the whole catalog into the index. Called at startup when a
// search server is configured.
func (s *Service) Reindex(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	books, _, err := s.catalog.ListBooks(ctx, store.BookFilter{})
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]BookRecord, 0, len(books))
	for _, b := range books {
		records = append(records, recordFromBook(b))
	}
	if err := s.meili.IndexBooks(records); err != nil {
		log.Printf("search: reindex failed: %v", err)
	}
}
