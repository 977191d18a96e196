package store

import (
	"sort"
	"strings"
)

// Shared query logic for the backends that filter in process (memory, file,
// redis). The relational backend expresses the same semantics in SQL; the two
// must stay in agreement.

func matchesFilter(b Book, f BookFilter) bool {
	if f.Search != "" && !matchesSearch(b, f.Search) {
		return false
	}
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	if f.Language != "" && b.Language != f.Language && b.Language != LanguageBoth {
		return false
	}
	if f.MinPrice != nil && b.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && b.Price > *f.MaxPrice {
		return false
	}
	return true
}

// matchesSearch is a case-insensitive substring match against the four
// bilingual text fields; a hit in any one is enough.
func matchesSearch(b Book, search string) bool {
	needle := strings.ToLower(search)
	for _, field := range []string{b.TitleHi, b.TitleEn, deref(b.DescriptionHi), deref(b.DescriptionEn)} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// sortBooks orders books in place. Every sort breaks ties on descending id so
// pagination windows are stable; with no creation timestamp stored, id desc is
// also what "newest" means.
func sortBooks(books []Book, sortKey string) {
	switch sortKey {
	case SortPriceLow:
		sort.Slice(books, func(i, j int) bool {
			if books[i].Price != books[j].Price {
				return books[i].Price < books[j].Price
			}
			return books[i].ID > books[j].ID
		})
	case SortPriceHigh:
		sort.Slice(books, func(i, j int) bool {
			if books[i].Price != books[j].Price {
				return books[i].Price > books[j].Price
			}
			return books[i].ID > books[j].ID
		})
	default: // SortNewest and unspecified
		sort.Slice(books, func(i, j int) bool {
			return books[i].ID > books[j].ID
		})
	}
}

// applyFilter runs the full pipeline: filter, sort, then slice. The returned
// total counts every match regardless of pagination.
func applyFilter(books []Book, f BookFilter) ([]Book, int) {
	matched := make([]Book, 0, len(books))
	for _, b := range books {
		if matchesFilter(b, f) {
			matched = append(matched, b)
		}
	}
	total := len(matched)

	sortBooks(matched, f.Sort)

	if f.Offset >= len(matched) {
		return []Book{}, total
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total
}

func distinctCategories(books []Book) []string {
	seen := make(map[string]struct{})
	for _, b := range books {
		if b.Category != "" {
			seen[b.Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bookFromInput(id int64, in BookInput) Book {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	return Book{
		ID:            id,
		Slug:          in.Slug,
		TitleHi:       in.TitleHi,
		TitleEn:       in.TitleEn,
		ShortHi:       in.ShortHi,
		ShortEn:       in.ShortEn,
		DescriptionHi: in.DescriptionHi,
		DescriptionEn: in.DescriptionEn,
		Price:         in.Price,
		ExTax:         in.ExTax,
		Category:      in.Category,
		Tags:          tags,
		Language:      in.Language,
		Stock:         in.Stock,
		CoverURL:      in.CoverURL,
	}
}
