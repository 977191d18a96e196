package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pustak/api/internal/gitrepo"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s, path
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()

	book, err := s.CreateBook(ctx, BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan",
		Price: 185, Category: "fiction", Language: LanguageHindi,
		Tags: []string{"classic"}, Stock: 10,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	client, err := s.CreateClient(ctx, Client{Name: "Asha", Email: "asha@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	order, err := s.PlaceOrder(ctx, client.ID, []OrderRequestItem{{BookID: book.ID, Quantity: 2}})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, err := reopened.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook after reopen: %v", err)
	}
	if got.Stock != 8 || got.Tags[0] != "classic" {
		t.Fatalf("book after reopen = %+v", got)
	}
	if _, err := reopened.GetClientByEmail(ctx, "asha@example.com"); err != nil {
		t.Fatalf("client after reopen: %v", err)
	}
	gotOrder, err := reopened.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("order after reopen: %v", err)
	}
	if gotOrder.TotalAmount != 370 {
		t.Fatalf("order total after reopen = %v", gotOrder.TotalAmount)
	}
}

func TestFileStoreSequencesSurviveReopen(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()

	in := BookInput{Slug: "a", TitleHi: "क", TitleEn: "A", Price: 10, Category: "c", Language: LanguageBoth, Stock: 1}
	first, err := s.CreateBook(ctx, in)
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if err := s.DeleteBook(ctx, first.ID); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	in.Slug = "b"
	second, err := reopened.CreateBook(ctx, in)
	if err != nil {
		t.Fatalf("CreateBook after reopen: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("id %d reused after delete and reopen (first was %d)", second.ID, first.ID)
	}
}

func TestFileStoreFailedOrderNotPersisted(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()

	book, err := s.CreateBook(ctx, BookInput{
		Slug: "scarce", TitleHi: "कम", TitleEn: "Scarce",
		Price: 50, Category: "c", Language: LanguageBoth, Stock: 1,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	_, err = s.PlaceOrder(ctx, 1, []OrderRequestItem{{BookID: book.ID, Quantity: 5}})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, _ := reopened.GetBook(ctx, book.ID)
	if got.Stock != 1 {
		t.Fatalf("stock persisted from failed order: %d", got.Stock)
	}
	orders, _ := reopened.ListOrdersByClient(ctx, 1)
	if len(orders) != 0 {
		t.Fatalf("failed order persisted: %v", orders)
	}
}

func TestFileStoreFailedSaveRollsBackMemory(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()

	book, err := s.CreateBook(ctx, BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan",
		Price: 185, Category: "fiction", Language: LanguageHindi, Stock: 2,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	// A directory squatting on the temp path makes every save fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("block saves: %v", err)
	}

	if _, err := s.PlaceOrder(ctx, 1, []OrderRequestItem{{BookID: book.ID, Quantity: 1}}); err == nil {
		t.Fatal("expected PlaceOrder to fail while saves are blocked")
	}
	got, err := s.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Stock != 2 {
		t.Fatalf("stock leaked from failed order: %d, want 2", got.Stock)
	}
	orders, err := s.ListOrdersByClient(ctx, 1)
	if err != nil {
		t.Fatalf("ListOrdersByClient: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("failed order kept in memory: %v", orders)
	}

	if _, err := s.CreateBook(ctx, BookInput{
		Slug: "nirmala", TitleHi: "निर्मला", TitleEn: "Nirmala",
		Price: 120, Category: "fiction", Language: LanguageHindi, Stock: 1,
	}); err == nil {
		t.Fatal("expected CreateBook to fail while saves are blocked")
	}
	if _, err := s.GetBookBySlug(ctx, "nirmala"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("phantom book kept in memory: err = %v", err)
	}

	// Unblock and make sure the next save flushes the rolled-back state.
	if err := os.Remove(path + ".tmp"); err != nil {
		t.Fatalf("unblock saves: %v", err)
	}
	if _, err := s.PlaceOrder(ctx, 1, []OrderRequestItem{{BookID: book.ID, Quantity: 1}}); err != nil {
		t.Fatalf("PlaceOrder after unblock: %v", err)
	}
	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err = reopened.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook after reopen: %v", err)
	}
	if got.Stock != 1 {
		t.Fatalf("stock after reopen = %d, want 1", got.Stock)
	}
	orders, err = reopened.ListOrdersByClient(ctx, 1)
	if err != nil {
		t.Fatalf("ListOrdersByClient after reopen: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders after reopen = %d, want 1", len(orders))
	}
}

func TestFileStoreJournalRecordsCatalogEdits(t *testing.T) {
	dir := t.TempDir()
	journal, err := gitrepo.Open(filepath.Join(dir, "journal"))
	if err != nil {
		t.Fatalf("gitrepo.Open: %v", err)
	}
	s, err := NewFileStore(filepath.Join(dir, "catalog.json"), journal)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	book, err := s.CreateBook(ctx, BookInput{
		Slug: "godan", TitleHi: "गोदान", TitleEn: "Godan",
		Price: 185, Category: "fiction", Language: LanguageHindi, Stock: 3,
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if err := s.DeleteBook(ctx, book.ID); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}

	history, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// initialize + create + delete, newest first
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].Message != "delete book 1 (godan)" {
		t.Fatalf("newest commit = %q", history[0].Message)
	}
}

func TestFileStoreHistoryWithoutJournal(t *testing.T) {
	s, _ := newTestFileStore(t)
	history, err := s.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %v, want empty", history)
	}
}
