package app

import (
	"fmt"
	"math"
	"strings"

	"pustak/api/internal/store"
)

// Request validators. Each returns the full list of field-level messages so a
// client can fix everything in one round trip; an empty list means the payload
// is acceptable.

var validLanguages = map[string]bool{
	store.LanguageHindi:   true,
	store.LanguageEnglish: true,
	store.LanguageBoth:    true,
}

func validateBookInput(in store.BookInput) []string {
	var errs []string
	if strings.TrimSpace(in.Slug) == "" {
		errs = append(errs, "slug is required")
	}
	if strings.TrimSpace(in.TitleHi) == "" {
		errs = append(errs, "title_hi is required")
	}
	if strings.TrimSpace(in.TitleEn) == "" {
		errs = append(errs, "title_en is required")
	}
	if strings.TrimSpace(in.Category) == "" {
		errs = append(errs, "category is required")
	}
	if !(in.Price > 0) || math.IsInf(in.Price, 0) || math.IsNaN(in.Price) {
		errs = append(errs, "price must be a positive number")
	}
	if in.Stock < 0 {
		errs = append(errs, "stock must not be negative")
	}
	if !validLanguages[in.Language] {
		errs = append(errs, "language must be one of hindi, english, both")
	}
	return errs
}

func validateSignup(name, email, password string) []string {
	var errs []string
	if strings.TrimSpace(name) == "" {
		errs = append(errs, "name is required")
	}
	errs = append(errs, validateEmail(email)...)
	if len(password) < 6 {
		errs = append(errs, "password must be at least 6 characters")
	}
	return errs
}

func validateEmail(email string) []string {
	email = strings.TrimSpace(email)
	if email == "" {
		return []string{"email is required"}
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return []string{"email is not valid"}
	}
	return nil
}

func validateClientLogin(email, password string) []string {
	var errs []string
	errs = append(errs, validateEmail(email)...)
	if password == "" {
		errs = append(errs, "password is required")
	}
	return errs
}

func validateAdminLogin(username, password string) []string {
	var errs []string
	if strings.TrimSpace(username) == "" {
		errs = append(errs, "username is required")
	}
	if password == "" {
		errs = append(errs, "password is required")
	}
	return errs
}

func validateOrderItems(items []store.OrderRequestItem) []string {
	if len(items) == 0 {
		return []string{"order must contain at least one item"}
	}
	var errs []string
	for i, item := range items {
		if item.BookID <= 0 {
			errs = append(errs, fmt.Sprintf("items[%d].bookId is required", i))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
	}
	return errs
}
