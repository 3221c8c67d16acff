// Package library holds the aggregates of the library backend and the value types
// returned by the reporting queries that always run against the relational store.
package library

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStaleVersion is returned by a source store when an update or delete carries a
// version that no longer matches the persisted row.
var ErrStaleVersion = errors.New("library: stale entity version")

// AuthorRef identifies one author of a book.
type AuthorRef struct {
	Number int64
	Name   string
}

// Book is a catalogue entry. ID is zero until the book is persisted.
type Book struct {
	ID          int64
	ISBN        string
	Title       string
	Genre       string
	Authors     []AuthorRef
	Description *string
	Photo       *string
	Version     int64
}

// AuthorNumbers returns the numbers of the book's authors in declaration order.
func (b Book) AuthorNumbers() []int64 {
	out := make([]int64, len(b.Authors))
	for i, a := range b.Authors {
		out[i] = a.Number
	}
	return out
}

// Author is identified by its author number. Number is zero until persisted.
type Author struct {
	Number  int64
	Name    string
	Bio     string
	Photo   *string
	Version int64
}

// Genre names are unique regardless of case.
type Genre struct {
	ID      int64
	Name    string
	Version int64
}

// Reader is identified by a human readable reader number such as "2024/17".
// Number is empty until the reader is persisted.
type Reader struct {
	Number            string
	UserID            uuid.UUID
	Username          string
	FullName          string
	PhoneNumber       string
	BirthDate         time.Time
	GDPRConsent       bool
	MarketingConsent  bool
	ThirdPartyConsent bool
	Photo             *string
	Version           int64
}

// Lending records one book lent to one reader.
type Lending struct {
	ID           int64
	BookID       int64
	ReaderNumber string
	StartDate    time.Time
	ReturnedDate *time.Time
}

// BookQuery filters the multi-field book search. Empty fields are ignored.
type BookQuery struct {
	Title      string
	Genre      string
	AuthorName string
}

// ReaderQuery filters the multi-field reader search. Empty fields are ignored.
type ReaderQuery struct {
	Name        string
	PhoneNumber string
	Username    string
}

// BookLendings pairs a book with the number of times it was lent.
type BookLendings struct {
	Book     Book
	Lendings int64
}

// AuthorLendings pairs an author with the number of lendings of their books.
type AuthorLendings struct {
	Author   Author
	Lendings int64
}

// GenreBookCount pairs a genre with the number of books filed under it.
type GenreBookCount struct {
	Genre     Genre
	BookCount int64
}

// GenreMonthLendings counts lendings of one genre in one calendar month.
type GenreMonthLendings struct {
	Genre    string
	Year     int
	Month    time.Month
	Lendings int64
}

// GenreAverageLendings is the average number of lendings per month for a genre
// over a reporting period.
type GenreAverageLendings struct {
	Genre   string
	Average float64
}

// ReaderLendings pairs a reader with the number of books they borrowed.
type ReaderLendings struct {
	Reader   Reader
	Lendings int64
}
