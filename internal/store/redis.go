package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyBooks        = "books"
	keyClients      = "clients"
	keyClientEmails = "clients:email"
	keyAdmins       = "admins"
	keyOrders       = "orders"
)

// RedisStore keeps every collection in Redis hashes with JSON values. Queries
// load the relevant hash and reuse the in-process filter pipeline, which keeps
// the catalog semantics identical to the other backends. Order placement is
// serialized by an in-process mutex; the deployment model is a single API
// instance per Redis database.
type RedisStore struct {
	client *redis.Client

	orderMu sync.Mutex
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) nextID(ctx context.Context, kind string) (int64, error) {
	id, err := s.client.Incr(ctx, "seq:"+kind).Result()
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", kind, err)
	}
	return id, nil
}

func (s *RedisStore) loadBooks(ctx context.Context) ([]Book, error) {
	raw, err := s.client.HGetAll(ctx, keyBooks).Result()
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	books := make([]Book, 0, len(raw))
	for _, value := range raw {
		var b Book
		if err := json.Unmarshal([]byte(value), &b); err != nil {
			return nil, fmt.Errorf("decode book: %w", err)
		}
		books = append(books, b)
	}
	return books, nil
}

func (s *RedisStore) putBook(ctx context.Context, book Book) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	if err := s.client.HSet(ctx, keyBooks, strconv.FormatInt(book.ID, 10), raw).Err(); err != nil {
		return fmt.Errorf("store book: %w", err)
	}
	return nil
}

func (s *RedisStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	books, err := s.loadBooks(ctx)
	if err != nil {
		return nil, 0, err
	}
	page, total := applyFilter(books, filter)
	return page, total, nil
}

func (s *RedisStore) GetBook(ctx context.Context, id int64) (Book, error) {
	value, err := s.client.HGet(ctx, keyBooks, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	var book Book
	if err := json.Unmarshal([]byte(value), &book); err != nil {
		return Book{}, fmt.Errorf("decode book: %w", err)
	}
	return book, nil
}

func (s *RedisStore) GetBookBySlug(ctx context.Context, slug string) (Book, error) {
	books, err := s.loadBooks(ctx)
	if err != nil {
		return Book{}, err
	}
	for _, b := range books {
		if b.Slug == slug {
			return b, nil
		}
	}
	return Book{}, ErrNotFound
}

func (s *RedisStore) ListCategories(ctx context.Context) ([]string, error) {
	books, err := s.loadBooks(ctx)
	if err != nil {
		return nil, err
	}
	return distinctCategories(books), nil
}

func (s *RedisStore) CreateBook(ctx context.Context, in BookInput) (Book, error) {
	id, err := s.nextID(ctx, "book")
	if err != nil {
		return Book{}, err
	}
	book := bookFromInput(id, in)
	if err := s.putBook(ctx, book); err != nil {
		return Book{}, err
	}
	return book, nil
}

func (s *RedisStore) UpdateBook(ctx context.Context, id int64, in BookInput) (Book, error) {
	if _, err := s.GetBook(ctx, id); err != nil {
		return Book{}, err
	}
	book := bookFromInput(id, in)
	if err := s.putBook(ctx, book); err != nil {
		return Book{}, err
	}
	return book, nil
}

func (s *RedisStore) DeleteBook(ctx context.Context, id int64) error {
	removed, err := s.client.HDel(ctx, keyBooks, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) PlaceOrder(ctx context.Context, clientID int64, items []OrderRequestItem) (Order, error) {
	// Single writer for the check-and-decrement window.
	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	resolved, total, err := resolveOrderItems(func(id int64) (Book, bool) {
		book, err := s.GetBook(ctx, id)
		if err != nil {
			return Book{}, false
		}
		return book, true
	}, items)
	if err != nil {
		return Order{}, err
	}

	id, err := s.nextID(ctx, "order")
	if err != nil {
		return Order{}, err
	}
	order := Order{
		ID:          id,
		ClientID:    clientID,
		Items:       resolved,
		TotalAmount: total,
		CreatedAt:   time.Now().UTC(),
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return Order{}, fmt.Errorf("encode order: %w", err)
	}

	decrements := make(map[int64]int, len(resolved))
	for _, item := range resolved {
		decrements[item.BookID] += item.Quantity
	}

	// Every write rides one MULTI/EXEC so a dropped connection cannot leave
	// decremented stock without the matching order.
	pipe := s.client.TxPipeline()
	for bookID, quantity := range decrements {
		book, err := s.GetBook(ctx, bookID)
		if err != nil {
			return Order{}, err
		}
		book.Stock -= quantity
		encoded, err := json.Marshal(book)
		if err != nil {
			return Order{}, fmt.Errorf("encode book: %w", err)
		}
		pipe.HSet(ctx, keyBooks, strconv.FormatInt(bookID, 10), encoded)
	}
	pipe.HSet(ctx, keyOrders, strconv.FormatInt(order.ID, 10), raw)
	pipe.LPush(ctx, clientOrdersKey(clientID), order.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

func (s *RedisStore) ListOrdersByClient(ctx context.Context, clientID int64) ([]Order, error) {
	ids, err := s.client.LRange(ctx, clientOrdersKey(clientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list client orders: %w", err)
	}
	orders := make([]Order, 0, len(ids))
	for _, id := range ids {
		value, err := s.client.HGet(ctx, keyOrders, id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", id, err)
		}
		var order Order
		if err := json.Unmarshal([]byte(value), &order); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", id, err)
		}
		orders = append(orders, order)
	}
	// LPUSH keeps newest first already; sort defensively for mixed imports.
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *RedisStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	value, err := s.client.HGet(ctx, keyOrders, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	var order Order
	if err := json.Unmarshal([]byte(value), &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

func (s *RedisStore) GetClientByEmail(ctx context.Context, email string) (Client, error) {
	id, err := s.client.HGet(ctx, keyClientEmails, email).Result()
	if err == redis.Nil {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("lookup client email: %w", err)
	}
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Client{}, fmt.Errorf("parse client id: %w", err)
	}
	return s.GetClientByID(ctx, parsed)
}

func (s *RedisStore) GetClientByID(ctx context.Context, id int64) (Client, error) {
	value, err := s.client.HGet(ctx, keyClients, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	var client Client
	if err := json.Unmarshal([]byte(value), &client); err != nil {
		return Client{}, fmt.Errorf("decode client: %w", err)
	}
	return client, nil
}

func (s *RedisStore) CreateClient(ctx context.Context, client Client) (Client, error) {
	id, err := s.nextID(ctx, "client")
	if err != nil {
		return Client{}, err
	}
	client.ID = id

	// HSETNX is the uniqueness gate: the first writer claims the email.
	claimed, err := s.client.HSetNX(ctx, keyClientEmails, client.Email, id).Result()
	if err != nil {
		return Client{}, fmt.Errorf("claim client email: %w", err)
	}
	if !claimed {
		return Client{}, ErrEmailTaken
	}

	raw, err := json.Marshal(client)
	if err != nil {
		return Client{}, fmt.Errorf("encode client: %w", err)
	}
	if err := s.client.HSet(ctx, keyClients, strconv.FormatInt(id, 10), raw).Err(); err != nil {
		return Client{}, fmt.Errorf("store client: %w", err)
	}
	return client, nil
}

func (s *RedisStore) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	value, err := s.client.HGet(ctx, keyAdmins, username).Result()
	if err == redis.Nil {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	var admin Admin
	if err := json.Unmarshal([]byte(value), &admin); err != nil {
		return Admin{}, fmt.Errorf("decode admin: %w", err)
	}
	return admin, nil
}

func (s *RedisStore) CreateAdmin(ctx context.Context, admin Admin) (Admin, error) {
	id, err := s.nextID(ctx, "admin")
	if err != nil {
		return Admin{}, err
	}
	admin.ID = id
	raw, err := json.Marshal(admin)
	if err != nil {
		return Admin{}, fmt.Errorf("encode admin: %w", err)
	}
	if err := s.client.HSet(ctx, keyAdmins, admin.Username, raw).Err(); err != nil {
		return Admin{}, fmt.Errorf("store admin: %w", err)
	}
	return admin, nil
}

func (s *RedisStore) CountAdmins(ctx context.Context) (int, error) {
	count, err := s.client.HLen(ctx, keyAdmins).Result()
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return int(count), nil
}

func clientOrdersKey(clientID int64) string {
	return "orders:client:" + strconv.FormatInt(clientID, 10)
}
