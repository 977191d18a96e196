package store

// resolveOrderItems validates every requested line against the catalog before
// any stock changes hand. It returns the priced snapshots and the order total,
// or the first failure. Callers mutate stock only after a nil error, which is
// what makes placement all-or-nothing for the in-process backends.
func resolveOrderItems(lookup func(int64) (Book, bool), items []OrderRequestItem) ([]OrderItem, float64, error) {
	resolved := make([]OrderItem, 0, len(items))
	reserved := make(map[int64]int)
	var total float64
	for _, item := range items {
		book, ok := lookup(item.BookID)
		if !ok {
			return nil, 0, &BookNotFoundError{BookID: item.BookID}
		}
		// Repeated book ids in one request draw from the same stock.
		if book.Stock-reserved[book.ID] < item.Quantity {
			return nil, 0, &InsufficientStockError{BookID: book.ID, TitleEn: book.TitleEn}
		}
		reserved[book.ID] += item.Quantity
		lineTotal := book.Price * float64(item.Quantity)
		resolved = append(resolved, OrderItem{
			BookID:   book.ID,
			TitleHi:  book.TitleHi,
			TitleEn:  book.TitleEn,
			Price:    book.Price,
			Quantity: item.Quantity,
			Total:    lineTotal,
		})
		total += lineTotal
	}
	return resolved, total, nil
}
