package core

import (
	"errors"
	"strings"
	"time"
)

// ConflictMode decides what Create does when a transaction with the same
// content hash already exists for the account.
type ConflictMode int

const (
	// ConflictSkip returns the existing transaction unchanged.
	ConflictSkip ConflictMode = iota
	// ConflictError fails with ErrConflict.
	ConflictError
	// ConflictDuplicate inserts a second row sharing the hash.
	ConflictDuplicate
)

func (m ConflictMode) String() string {
	switch m {
	case ConflictSkip:
		return "skip"
	case ConflictError:
		return "error"
	case ConflictDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ParseConflictMode accepts the names returned by String.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "nothing", "":
		return ConflictSkip, nil
	case "error":
		return ConflictError, nil
	case "duplicate":
		return ConflictDuplicate, nil
	}
	return ConflictSkip, errors.New("invalid conflict mode: " + s)
}

// Order is the chronological direction of a listing.
type Order int

const (
	Ascending Order = iota
	Descending
)

// RecategorizeMode selects which transactions a recategorization sweep visits.
type RecategorizeMode int

const (
	// RecategorizeAll visits every transaction in the window.
	RecategorizeAll RecategorizeMode = iota
	// RecategorizeUncategorized visits only transactions without a category.
	RecategorizeUncategorized
)

func (m RecategorizeMode) String() string {
	if m == RecategorizeUncategorized {
		return "uncategorized"
	}
	return "all"
}

type (
	User struct {
		ID       int64
		Username string
	}

	Account struct {
		ID     int64
		UserID int64
		Name   string
	}

	Category struct {
		ID          int64
		Name        string
		Description string
	}

	Rule struct {
		ID         int64
		UserID     int64
		Pattern    string
		CategoryID int64
	}

	// Transaction amounts are signed cents. Accumulated is the running
	// balance of the account up to and including this row.
	Transaction struct {
		ID          int64
		AccountID   int64
		Description string
		Timestamp   time.Time
		CategoryID  *int64
		Amount      int64
		Accumulated int64
		Hash        string
	}

	NewTransaction struct {
		AccountID   int64
		Description string
		Timestamp   time.Time
		CategoryID  *int64
		Amount      int64
	}

	// Snapshot is the cumulative balance of an account at the end of the
	// UTC day starting at Date.
	Snapshot struct {
		AccountID int64
		Date      time.Time
		Amount    int64
	}

	Page struct {
		Limit  int
		Offset int
	}
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrZeroTimestamp    = errors.New("timestamp cannot be zero")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyPattern     = errors.New("empty pattern")
)

func (t NewTransaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// Hash returns the content fingerprint used for dedup.
func (t NewTransaction) Hash() string {
	return ContentHash(t.AccountID, t.Description, t.Timestamp, t.Amount)
}

// Uncategorized reports whether no category is assigned.
func (t Transaction) Uncategorized() bool {
	return t.CategoryID == nil
}

func (r Rule) Validate() error {
	if r.Pattern == "" {
		return ErrEmptyPattern
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// DefaultPage is used when a caller passes a zero Page.
var DefaultPage = Page{Limit: 50}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPage.Limit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
