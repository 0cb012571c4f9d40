package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LineageID identifies one thesis across all of its versions. It is a
// canonical lowercase UUID.
type LineageID string

// NewLineageID parses id and returns its canonical form.
func NewLineageID(id string) (LineageID, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", WrapError("shared", "NewLineageID", ErrInvalidID, "lineage ID must be a UUID", err)
	}
	return LineageID(u.String()), nil
}

// IsValid reports whether l is already in canonical form.
func (l LineageID) IsValid() bool {
	u, err := uuid.Parse(string(l))
	return err == nil && u.String() == string(l)
}

func (l LineageID) String() string { return string(l) }

// UserID names a student, supervisor or administrator. Identities come from
// an external provider, so only emptiness and length are checked.
type UserID string

const maxUserIDLen = 128

// NewUserID trims id and validates it.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "user ID is empty or too long")
	}
	return uid, nil
}

func (u UserID) IsValid() bool {
	n := len(strings.TrimSpace(string(u)))
	return n > 0 && n <= maxUserIDLen
}

func (u UserID) IsEmpty() bool { return strings.TrimSpace(string(u)) == "" }

func (u UserID) String() string { return string(u) }

// TimeRange is a closed interval. Both ends belong to it.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether tm lies within the range, ends included.
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && !tm.After(t.To)
}

// Pagination selects one page of a status listing. Page counts from 1.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPagination clamps page and pageSize to usable values.
func NewPagination(page, pageSize int) Pagination {
	p := Pagination{Page: max(page, 1), PageSize: pageSize}
	p.PageSize = p.Limit()
	return p
}

// DefaultPagination is the first page at the default size.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}

// Limit is the clamped page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Offset is the number of rows before the page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}
