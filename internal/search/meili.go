package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"pustak/api/internal/store"
)

const idxBooks = "pustak_books"

// Meili implements catalog search via Meilisearch. The instance tracks its own
// health in the background so a down search server never takes the API with it.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates the Meilisearch client and configures the books index. An
// unreachable server is tolerated; the health loop retries until it appears.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxBooks,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxBooks, err)
	}

	index := m.client.Index(idxBooks)
	filterable := []interface{}{"category", "language", "price"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs: %v", err)
	}
	searchable := []string{"title_hi", "title_en", "description_hi", "description_en"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs: %v", err)
	}
	sortable := []string{"price", "id"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs: %v", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs a catalog query against the books index. The returned ids are in
// result order; the caller hydrates them from the data store.
func (m *Meili) Search(filter store.BookFilter) ([]int64, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		Limit:  int64(filter.Limit),
		Offset: int64(filter.Offset),
	}
	if filter.Limit <= 0 {
		sr.Limit = 1000
	}

	var filters []string
	if filter.Category != "" {
		filters = append(filters, fmt.Sprintf("category = %q", filter.Category))
	}
	if filter.Language != "" {
		filters = append(filters, fmt.Sprintf("(language = %q OR language = %q)", filter.Language, store.LanguageBoth))
	}
	if filter.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %v", *filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %v", *filter.MaxPrice))
	}
	if len(filters) > 0 {
		sr.Filter = filters
	}

	switch filter.Sort {
	case store.SortPriceLow:
		sr.Sort = []string{"price:asc", "id:desc"}
	case store.SortPriceHigh:
		sr.Sort = []string{"price:desc", "id:desc"}
	default:
		sr.Sort = []string{"id:desc"}
	}

	resp, err := m.client.Index(idxBooks).Search(filter.Search, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]int64, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, ok := hit["id"]
		if !ok {
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	// The index reports an estimated total, not the exact count the store
	// pipeline computes. Callers treating it as totalCount accept that it
	// can drift from the hydrated page under index lag.
	return ids, int(resp.EstimatedTotalHits), nil
}

// IndexBook adds or updates one book in the index.
func (m *Meili) IndexBook(record BookRecord) error {
	_, err := m.client.Index(idxBooks).AddDocuments([]BookRecord{record}, nil)
	return err
}

// IndexBooks bulk-indexes the catalog.
func (m *Meili) IndexBooks(records []BookRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxBooks).AddDocuments(records, nil)
	return err
}

// DeleteBook removes a book from the index.
func (m *Meili) DeleteBook(id int64) error {
	_, err := m.client.Index(idxBooks).DeleteDocument(fmt.Sprintf("%d", id), nil)
	return err
}
