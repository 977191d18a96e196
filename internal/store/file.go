package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"pustak/api/internal/gitrepo"
)

// fileData is the on-disk shape of the flat-file backend: one JSON document
// holding every collection plus the id sequences. Sequences are persisted so
// ids stay monotonic across restarts and are never reused after deletes.
type fileData struct {
	Books     []Book           `json:"books"`
	Clients   []Client         `json:"clients"`
	Admins    []Admin          `json:"admins"`
	Orders    []Order          `json:"orders"`
	Sequences map[string]int64 `json:"sequences"`
}

// FileStore persists the whole dataset as a single JSON file, loaded at open
// and rewritten after every mutation. An optional git journal records each
// catalog mutation as a commit.
type FileStore struct {
	path    string
	journal *gitrepo.Journal

	mu   sync.RWMutex
	data fileData
}

func NewFileStore(path string, journal *gitrepo.Journal) (*FileStore, error) {
	s := &FileStore{path: path, journal: journal}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.data = fileData{
			Books:     []Book{},
			Clients:   []Client{},
			Admins:    []Admin{},
			Orders:    []Order{},
			Sequences: map[string]int64{},
		}
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		return s.save("initialize catalog")
	}
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("parse data file: %w", err)
	}
	if s.data.Sequences == nil {
		s.data.Sequences = map[string]int64{}
	}
	return nil
}

// save rewrites the data file atomically and, when a journal is attached,
// commits the new state under the given message.
func (s *FileStore) save(message string) error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	if s.journal != nil {
		if _, err := s.journal.Record(filepath.Base(s.path), message, "api", raw); err != nil {
			return fmt.Errorf("journal %s: %w", message, err)
		}
	}
	return nil
}

func (s *FileStore) nextID(kind string) int64 {
	s.data.Sequences[kind]++
	return s.data.Sequences[kind]
}

// snapshot copies the dataset so a failed save can roll the in-memory state
// back to what the file still holds. Element structs are copied by value;
// mutators never write through their pointer fields.
func (s *FileStore) snapshot() fileData {
	clone := fileData{
		Books:     append([]Book(nil), s.data.Books...),
		Clients:   append([]Client(nil), s.data.Clients...),
		Admins:    append([]Admin(nil), s.data.Admins...),
		Orders:    append([]Order(nil), s.data.Orders...),
		Sequences: make(map[string]int64, len(s.data.Sequences)),
	}
	for kind, n := range s.data.Sequences {
		clone.Sequences[kind] = n
	}
	return clone
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path)
	return err
}

// History exposes the git journal of catalog edits; without a journal it
// reports an empty list.
func (s *FileStore) History(ctx context.Context, limit int) ([]gitrepo.CommitInfo, error) {
	if s.journal == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	return s.journal.History(limit)
}

func (s *FileStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, total := applyFilter(append([]Book(nil), s.data.Books...), filter)
	return page, total, nil
}

func (s *FileStore) GetBook(ctx context.Context, id int64) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Books {
		if b.ID == id {
			return b, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *FileStore) GetBookBySlug(ctx context.Context, slug string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Books {
		if b.Slug == slug {
			return b, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *FileStore) ListCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return distinctCategories(s.data.Books), nil
}

func (s *FileStore) CreateBook(ctx context.Context, in BookInput) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snapshot()
	book := bookFromInput(s.nextID("book"), in)
	s.data.Books = append(s.data.Books, book)
	if err := s.save(fmt.Sprintf("create book %d (%s)", book.ID, book.Slug)); err != nil {
		s.data = prev
		return Book{}, err
	}
	return book, nil
}

func (s *FileStore) UpdateBook(ctx context.Context, id int64, in BookInput) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.data.Books {
		if b.ID == id {
			prev := s.snapshot()
			book := bookFromInput(id, in)
			s.data.Books[i] = book
			if err := s.save(fmt.Sprintf("update book %d (%s)", book.ID, book.Slug)); err != nil {
				s.data = prev
				return Book{}, err
			}
			return book, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *FileStore) DeleteBook(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.data.Books {
		if b.ID == id {
			prev := s.snapshot()
			s.data.Books = append(s.data.Books[:i], s.data.Books[i+1:]...)
			if err := s.save(fmt.Sprintf("delete book %d (%s)", b.ID, b.Slug)); err != nil {
				s.data = prev
				return err
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *FileStore) PlaceOrder(ctx context.Context, clientID int64, items []OrderRequestItem) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[int64]int, len(s.data.Books))
	for i, b := range s.data.Books {
		index[b.ID] = i
	}

	resolved, total, err := resolveOrderItems(func(id int64) (Book, bool) {
		i, ok := index[id]
		if !ok {
			return Book{}, false
		}
		return s.data.Books[i], true
	}, items)
	if err != nil {
		return Order{}, err
	}

	prev := s.snapshot()
	for _, item := range resolved {
		s.data.Books[index[item.BookID]].Stock -= item.Quantity
	}

	order := Order{
		ID:          s.nextID("order"),
		ClientID:    clientID,
		Items:       resolved,
		TotalAmount: total,
		CreatedAt:   time.Now().UTC(),
	}
	s.data.Orders = append(s.data.Orders, order)
	if err := s.save(fmt.Sprintf("place order %d", order.ID)); err != nil {
		s.data = prev
		return Order{}, err
	}
	return order, nil
}

func (s *FileStore) ListOrdersByClient(ctx context.Context, clientID int64) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]Order, 0)
	for _, o := range s.data.Orders {
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

func (s *FileStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.data.Orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (s *FileStore) GetClientByEmail(ctx context.Context, email string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Clients {
		if c.Email == email {
			return c, nil
		}
	}
	return Client{}, ErrNotFound
}

func (s *FileStore) GetClientByID(ctx context.Context, id int64) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Clients {
		if c.ID == id {
			return c, nil
		}
	}
	return Client{}, ErrNotFound
}

func (s *FileStore) CreateClient(ctx context.Context, client Client) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.data.Clients {
		if c.Email == client.Email {
			return Client{}, ErrEmailTaken
		}
	}
	prev := s.snapshot()
	client.ID = s.nextID("client")
	s.data.Clients = append(s.data.Clients, client)
	if err := s.save(fmt.Sprintf("create client %d", client.ID)); err != nil {
		s.data = prev
		return Client{}, err
	}
	return client, nil
}

func (s *FileStore) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.Admins {
		if a.Username == username {
			return a, nil
		}
	}
	return Admin{}, ErrNotFound
}

func (s *FileStore) CreateAdmin(ctx context.Context, admin Admin) (Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snapshot()
	admin.ID = s.nextID("admin")
	s.data.Admins = append(s.data.Admins, admin)
	if err := s.save(fmt.Sprintf("create admin %d", admin.ID)); err != nil {
		s.data = prev
		return Admin{}, err
	}
	return admin, nil
}

func (s *FileStore) CountAdmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Admins), nil
}
