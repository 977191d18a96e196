package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open dials Postgres through the database/sql pgx driver. The pool is kept
// small; a single API instance serves a read-heavy catalog and orders are
// short transactions.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(12)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(10 * time.Minute)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const bookColumns = `id, slug, title_hi, title_en, short_hi, short_en, description_hi, description_en, price, ex_tax, category, tags, language, stock, cover_url`

// buildBookWhere translates a BookFilter into a WHERE clause and its
// arguments. Pagination and ordering are handled by the caller; the same
// clause serves both the page query and the unbounded count.
func buildBookWhere(f BookFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(title_hi ILIKE $%d OR title_en ILIKE $%d OR description_hi ILIKE $%d OR description_en ILIKE $%d)`,
			n, n, n, n,
		))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		clauses = append(clauses, fmt.Sprintf(`category = $%d`, len(args)))
	}
	if f.Language != "" {
		args = append(args, f.Language)
		clauses = append(clauses, fmt.Sprintf(`(language = $%d OR language = 'both')`, len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		clauses = append(clauses, fmt.Sprintf(`price >= $%d`, len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		clauses = append(clauses, fmt.Sprintf(`price <= $%d`, len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// bookOrderClause maps a sort key to ORDER BY. Descending id is the tie-break
// everywhere, and doubles as "newest" since no creation timestamp is stored.
func bookOrderClause(sortKey string) string {
	switch sortKey {
	case SortPriceLow:
		return " ORDER BY price ASC, id DESC"
	case SortPriceHigh:
		return " ORDER BY price DESC, id DESC"
	default:
		return " ORDER BY id DESC"
	}
}

func (s *PostgresStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	where, args := buildBookWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	query := `SELECT ` + bookColumns + ` FROM books` + where + bookOrderClause(filter.Sort)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate books: %w", err)
	}
	return books, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (Book, error) {
	var book Book
	var tags []byte
	err := row.Scan(
		&book.ID,
		&book.Slug,
		&book.TitleHi,
		&book.TitleEn,
		&book.ShortHi,
		&book.ShortEn,
		&book.DescriptionHi,
		&book.DescriptionEn,
		&book.Price,
		&book.ExTax,
		&book.Category,
		&tags,
		&book.Language,
		&book.Stock,
		&book.CoverURL,
	)
	if err != nil {
		return Book{}, err
	}
	if err := json.Unmarshal(tags, &book.Tags); err != nil {
		return Book{}, fmt.Errorf("decode tags for book %d: %w", book.ID, err)
	}
	if book.Tags == nil {
		book.Tags = []string{}
	}
	return book, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, id int64) (Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=$1`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

func (s *PostgresStore) GetBookBySlug(ctx context.Context, slug string) (Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE slug=$1`, slug)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book by slug: %w", err)
	}
	return book, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM books ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) CreateBook(ctx context.Context, in BookInput) (Book, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Book{}, fmt.Errorf("encode tags: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO books (slug, title_hi, title_en, short_hi, short_en, description_hi, description_en, price, ex_tax, category, tags, language, stock, cover_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, in.Slug, in.TitleHi, in.TitleEn, in.ShortHi, in.ShortEn, in.DescriptionHi, in.DescriptionEn,
		in.Price, in.ExTax, in.Category, tagsJSON, in.Language, in.Stock, in.CoverURL,
	).Scan(&id)
	if err != nil {
		return Book{}, fmt.Errorf("insert book: %w", err)
	}
	return bookFromInput(id, in), nil
}

func (s *PostgresStore) UpdateBook(ctx context.Context, id int64, in BookInput) (Book, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Book{}, fmt.Errorf("encode tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE books
		SET slug=$2, title_hi=$3, title_en=$4, short_hi=$5, short_en=$6, description_hi=$7, description_en=$8,
		    price=$9, ex_tax=$10, category=$11, tags=$12, language=$13, stock=$14, cover_url=$15
		WHERE id=$1
	`, id, in.Slug, in.TitleHi, in.TitleEn, in.ShortHi, in.ShortEn, in.DescriptionHi, in.DescriptionEn,
		in.Price, in.ExTax, in.Category, tagsJSON, in.Language, in.Stock, in.CoverURL)
	if err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Book{}, fmt.Errorf("update book result: %w", err)
	}
	if affected == 0 {
		return Book{}, ErrNotFound
	}
	return bookFromInput(id, in), nil
}

func (s *PostgresStore) DeleteBook(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PlaceOrder runs the whole placement in one transaction. Every requested row
// is locked with FOR UPDATE (in ascending id order to avoid deadlocks between
// concurrent orders), validated as a batch, and only then decremented, so a
// failing line leaves no stock changes behind.
func (s *PostgresStore) PlaceOrder(ctx context.Context, clientID int64, items []OrderRequestItem) (Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.BookID]; ok {
			continue
		}
		seen[item.BookID] = struct{}{}
		ids = append(ids, item.BookID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[int64]Book, len(ids))
	for _, id := range ids {
		row := tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=$1 FOR UPDATE`, id)
		book, err := scanBook(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue // reported in request order below
		}
		if err != nil {
			return Order{}, fmt.Errorf("lock book %d: %w", id, err)
		}
		locked[id] = book
	}

	resolved, total, err := resolveOrderItems(func(id int64) (Book, bool) {
		book, ok := locked[id]
		return book, ok
	}, items)
	if err != nil {
		return Order{}, err
	}

	decrements := make(map[int64]int)
	for _, item := range resolved {
		decrements[item.BookID] += item.Quantity
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE books SET stock = stock - $2 WHERE id=$1`, id, decrements[id]); err != nil {
			return Order{}, fmt.Errorf("decrement stock for book %d: %w", id, err)
		}
	}

	itemsJSON, err := json.Marshal(resolved)
	if err != nil {
		return Order{}, fmt.Errorf("encode order items: %w", err)
	}

	order := Order{ClientID: clientID, Items: resolved, TotalAmount: total}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (client_id, items, total_amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, clientID, itemsJSON, total).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) ListOrdersByClient(ctx context.Context, clientID int64) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, items, total_amount, created_at
		FROM orders
		WHERE client_id=$1
		ORDER BY created_at DESC, id DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, items, total_amount, created_at
		FROM orders
		WHERE id=$1
	`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func scanOrder(row rowScanner) (Order, error) {
	var order Order
	var items []byte
	if err := row.Scan(&order.ID, &order.ClientID, &items, &order.TotalAmount, &order.CreatedAt); err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return Order{}, fmt.Errorf("decode items for order %d: %w", order.ID, err)
	}
	return order, nil
}

func (s *PostgresStore) GetClientByEmail(ctx context.Context, email string) (Client, error) {
	var client Client
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash FROM clients WHERE email=$1`, email,
	).Scan(&client.ID, &client.Name, &client.Email, &client.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client by email: %w", err)
	}
	return client, nil
}

func (s *PostgresStore) GetClientByID(ctx context.Context, id int64) (Client, error) {
	var client Client
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash FROM clients WHERE id=$1`, id,
	).Scan(&client.ID, &client.Name, &client.Email, &client.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

func (s *PostgresStore) CreateClient(ctx context.Context, client Client) (Client, error) {
	// ON CONFLICT DO NOTHING plus RETURNING: no row back means the email row
	// already existed.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clients (name, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`, client.Name, client.Email, client.PasswordHash).Scan(&client.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrEmailTaken
	}
	if err != nil {
		return Client{}, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}

func (s *PostgresStore) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	var admin Admin
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM admins WHERE username=$1`, username,
	).Scan(&admin.ID, &admin.Username, &admin.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	return admin, nil
}

func (s *PostgresStore) CreateAdmin(ctx context.Context, admin Admin) (Admin, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO admins (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
		RETURNING id
	`, admin.Username, admin.PasswordHash).Scan(&admin.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, fmt.Errorf("admin %q already exists", admin.Username)
	}
	if err != nil {
		return Admin{}, fmt.Errorf("insert admin: %w", err)
	}
	return admin, nil
}

func (s *PostgresStore) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}
