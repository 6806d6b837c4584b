package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/bcrypt"

	"library/internal/db"
	"library/internal/model"
	"library/internal/repository"
)

//go:embed books.json
var builtinBooks []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SeedBook is one catalogue entry in a seed file.
type SeedBook struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	PublishedYear int    `json:"published_year"`
	Genre         string `json:"genre"`
	Description   string `json:"description"`
	CoverImage    string `json:"cover_image"`
	Copies        int    `json:"copies"`
}

// loadBooks reads a catalogue from an http(s) URL, a local file, or the
// built-in list when source is empty.
func loadBooks(ctx context.Context, source string) ([]SeedBook, error) {
	var (
		body []byte
		err  error
	)
	switch {
	case source == "":
		body = builtinBooks
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		body, err = fetch(ctx, source)
	default:
		body, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var books []SeedBook
	if err := json.Unmarshal(body, &books); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return books, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// seedBooks creates missing books and refreshes the catalogue fields of
// existing ones, matched by ISBN. Copy counts of existing books are left
// alone so loans in flight keep a consistent ledger. A deleted book whose
// ISBN reappears is restored with the seeded copy count.
func seedBooks(ctx context.Context, repo repository.BookRepository, books []SeedBook) (seeded int, updated int, err error) {
	for _, item := range books {
		if item.ISBN == "" || item.Title == "" || item.Copies < 0 {
			return seeded, updated, fmt.Errorf("invalid seed entry %q", item.Title)
		}

		existing, err := repo.FindByISBN(ctx, item.ISBN)
		if err != nil && !db.IsNotFound(err) {
			return seeded, updated, fmt.Errorf("error checking book %s: %w", item.ISBN, err)
		}

		if existing != nil {
			existing.Title = item.Title
			existing.Author = item.Author
			existing.PublishedYear = item.PublishedYear
			existing.Genre = item.Genre
			existing.Description = item.Description
			existing.CoverImage = item.CoverImage
			if err := repo.UpdateCatalogue(ctx, existing); err != nil {
				return seeded, updated, fmt.Errorf("error updating book %s: %w", item.ISBN, err)
			}
			updated++
			continue
		}

		book := &model.Book{
			Title:           item.Title,
			Author:          item.Author,
			ISBN:            item.ISBN,
			PublishedYear:   item.PublishedYear,
			Genre:           item.Genre,
			Description:     item.Description,
			CoverImage:      item.CoverImage,
			TotalCopies:     item.Copies,
			AvailableCopies: item.Copies,
		}
		deleted, err := repo.FindDeletedByISBN(ctx, item.ISBN)
		switch {
		case err == nil:
			book.ID = deleted.ID
			if err := repo.Restore(ctx, book); err != nil {
				return seeded, updated, fmt.Errorf("error restoring book %s: %w", item.ISBN, err)
			}
		case db.IsNotFound(err):
			if err := repo.Create(ctx, book); err != nil {
				return seeded, updated, fmt.Errorf("error creating book %s: %w", item.ISBN, err)
			}
		default:
			return seeded, updated, fmt.Errorf("error checking deleted book %s: %w", item.ISBN, err)
		}
		seeded++
	}

	return seeded, updated, nil
}

// seedAdmin makes sure an administrator with the given email exists,
// promoting an existing account if needed. It reports whether a user was created.
func seedAdmin(ctx context.Context, users repository.UserRepository, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := users.FindByEmail(ctx, email)
	if err != nil && !db.IsNotFound(err) {
		return false, fmt.Errorf("find admin: %w", err)
	}
	if existing != nil {
		if existing.IsAdmin() {
			return false, nil
		}
		return false, users.UpdateRole(ctx, existing.ID, model.RoleAdmin)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	admin := &model.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}

	deleted, err := users.FindDeletedByEmail(ctx, email)
	if err != nil && !db.IsNotFound(err) {
		return false, fmt.Errorf("find deleted admin: %w", err)
	}
	if deleted != nil {
		admin.ID = deleted.ID
		if err := users.Restore(ctx, admin); err != nil {
			return false, fmt.Errorf("restore admin: %w", err)
		}
		return true, nil
	}
	if err := users.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
