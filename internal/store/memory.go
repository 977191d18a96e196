package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the whole dataset in process. It backs tests and the
// default development configuration.
type MemoryStore struct {
	mu       sync.RWMutex
	books    map[int64]Book
	clients  map[int64]Client
	byEmail  map[string]int64
	admins   map[string]Admin
	orders   map[int64]Order
	nextBook int64
	nextUser int64
	nextAdm  int64
	nextOrd  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[int64]Book),
		clients: make(map[int64]Client),
		byEmail: make(map[string]int64),
		admins:  make(map[string]Admin),
		orders:  make(map[int64]Order),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) snapshotBooks() []Book {
	books := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		books = append(books, b)
	}
	return books
}

func (s *MemoryStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, total := applyFilter(s.snapshotBooks(), filter)
	return page, total, nil
}

func (s *MemoryStore) GetBook(ctx context.Context, id int64) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return book, nil
}

func (s *MemoryStore) GetBookBySlug(ctx context.Context, slug string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		if b.Slug == slug {
			return b, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return distinctCategories(s.snapshotBooks()), nil
}

func (s *MemoryStore) CreateBook(ctx context.Context, in BookInput) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Ids count up forever; deleting a book never frees its id.
	s.nextBook++
	book := bookFromInput(s.nextBook, in)
	s.books[book.ID] = book
	return book, nil
}

func (s *MemoryStore) UpdateBook(ctx context.Context, id int64, in BookInput) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return Book{}, ErrNotFound
	}
	book := bookFromInput(id, in)
	s.books[id] = book
	return book, nil
}

func (s *MemoryStore) DeleteBook(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return ErrNotFound
	}
	delete(s.books, id)
	return nil
}

// PlaceOrder validates every line, then decrements stock and records the
// order, all under one lock so concurrent placements on the same book cannot
// both pass the stock check.
func (s *MemoryStore) PlaceOrder(ctx context.Context, clientID int64, items []OrderRequestItem) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, total, err := resolveOrderItems(func(id int64) (Book, bool) {
		b, ok := s.books[id]
		return b, ok
	}, items)
	if err != nil {
		return Order{}, err
	}

	for _, item := range resolved {
		book := s.books[item.BookID]
		book.Stock -= item.Quantity
		s.books[item.BookID] = book
	}

	s.nextOrd++
	order := Order{
		ID:          s.nextOrd,
		ClientID:    clientID,
		Items:       resolved,
		TotalAmount: total,
		CreatedAt:   time.Now().UTC(),
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *MemoryStore) ListOrdersByClient(ctx context.Context, clientID int64) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]Order, 0)
	for _, o := range s.orders {
		if o.ClientID == clientID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (s *MemoryStore) GetClientByEmail(ctx context.Context, email string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Client{}, ErrNotFound
	}
	return s.clients[id], nil
}

func (s *MemoryStore) GetClientByID(ctx context.Context, id int64) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return client, nil
}

func (s *MemoryStore) CreateClient(ctx context.Context, client Client) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[client.Email]; exists {
		return Client{}, ErrEmailTaken
	}
	s.nextUser++
	client.ID = s.nextUser
	s.clients[client.ID] = client
	s.byEmail[client.Email] = client.ID
	return client, nil
}

func (s *MemoryStore) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admin, ok := s.admins[username]
	if !ok {
		return Admin{}, ErrNotFound
	}
	return admin, nil
}

func (s *MemoryStore) CreateAdmin(ctx context.Context, admin Admin) (Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAdm++
	admin.ID = s.nextAdm
	s.admins[admin.Username] = admin
	return admin, nil
}

func (s *MemoryStore) CountAdmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.admins), nil
}
