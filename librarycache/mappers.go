package librarycache

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/cache"
	"github.com/goliatone/go-library-cache/library"
	"github.com/google/uuid"
)

// Record field names. Optional fields are left out of the record when absent.
const (
	fieldID          = "id"
	fieldVersion     = "version"
	fieldISBN        = "isbn"
	fieldTitle       = "title"
	fieldGenre       = "genre"
	fieldAuthors     = "authors"
	fieldAuthorName  = "author."
	fieldDescription = "description"
	fieldPhoto       = "photo"
	fieldNumber      = "number"
	fieldName        = "name"
	fieldBio         = "bio"
	fieldUserID      = "userId"
	fieldUsername    = "username"
	fieldFullName    = "fullName"
	fieldPhone       = "phoneNumber"
	fieldBirthDate   = "birthDate"
	fieldGDPR        = "gdprConsent"
	fieldMarketing   = "marketingConsent"
	fieldThirdParty  = "thirdPartyConsent"
)

// BirthDateLayout is the record encoding of Reader.BirthDate.
const BirthDateLayout = time.DateOnly

var (
	_ cache.Mapper[library.Book]   = BookMapper{}
	_ cache.Mapper[library.Author] = AuthorMapper{}
	_ cache.Mapper[library.Genre]  = GenreMapper{}
	_ cache.Mapper[library.Reader] = ReaderMapper{}
)

// BookMapper stores the author list as comma separated author numbers with each
// name under "author.<number>".
type BookMapper struct{}

func (BookMapper) ToRecord(b library.Book) cache.Record {
	r := cache.Record{
		fieldID:      formatInt(b.ID),
		fieldISBN:    b.ISBN,
		fieldTitle:   b.Title,
		fieldGenre:   b.Genre,
		fieldVersion: formatInt(b.Version),
	}

	numbers := make([]string, len(b.Authors))
	for i, a := range b.Authors {
		numbers[i] = formatInt(a.Number)
		r[fieldAuthorName+numbers[i]] = a.Name
	}
	r[fieldAuthors] = strings.Join(numbers, ",")

	putOptional(r, fieldDescription, b.Description)
	putOptional(r, fieldPhoto, b.Photo)
	return r
}

func (BookMapper) FromRecord(r cache.Record) (library.Book, bool) {
	if !has(r, fieldID, fieldISBN, fieldTitle, fieldGenre, fieldAuthors, fieldVersion) {
		return library.Book{}, false
	}

	b := library.Book{
		ISBN:        r[fieldISBN],
		Title:       r[fieldTitle],
		Genre:       r[fieldGenre],
		Description: optional(r, fieldDescription),
		Photo:       optional(r, fieldPhoto),
	}
	var ok bool
	if b.ID, ok = parseInt(r[fieldID]); !ok {
		return library.Book{}, false
	}
	if b.Version, ok = parseInt(r[fieldVersion]); !ok {
		return library.Book{}, false
	}

	numbers, ok := parseIDList(r[fieldAuthors])
	if !ok {
		return library.Book{}, false
	}
	for _, n := range numbers {
		name, found := r[fieldAuthorName+formatInt(n)]
		if !found {
			return library.Book{}, false
		}
		b.Authors = append(b.Authors, library.AuthorRef{Number: n, Name: name})
	}
	return b, true
}

// AuthorMapper maps authors keyed by author number.
type AuthorMapper struct{}

func (AuthorMapper) ToRecord(a library.Author) cache.Record {
	r := cache.Record{
		fieldNumber:  formatInt(a.Number),
		fieldName:    a.Name,
		fieldBio:     a.Bio,
		fieldVersion: formatInt(a.Version),
	}
	putOptional(r, fieldPhoto, a.Photo)
	return r
}

func (AuthorMapper) FromRecord(r cache.Record) (library.Author, bool) {
	if !has(r, fieldNumber, fieldName, fieldBio, fieldVersion) {
		return library.Author{}, false
	}
	a := library.Author{
		Name:  r[fieldName],
		Bio:   r[fieldBio],
		Photo: optional(r, fieldPhoto),
	}
	var ok bool
	if a.Number, ok = parseInt(r[fieldNumber]); !ok {
		return library.Author{}, false
	}
	if a.Version, ok = parseInt(r[fieldVersion]); !ok {
		return library.Author{}, false
	}
	return a, true
}

// GenreMapper maps genres.
type GenreMapper struct{}

func (GenreMapper) ToRecord(g library.Genre) cache.Record {
	return cache.Record{
		fieldID:      formatInt(g.ID),
		fieldName:    g.Name,
		fieldVersion: formatInt(g.Version),
	}
}

func (GenreMapper) FromRecord(r cache.Record) (library.Genre, bool) {
	if !has(r, fieldID, fieldName, fieldVersion) {
		return library.Genre{}, false
	}
	g := library.Genre{Name: r[fieldName]}
	var ok bool
	if g.ID, ok = parseInt(r[fieldID]); !ok {
		return library.Genre{}, false
	}
	if g.Version, ok = parseInt(r[fieldVersion]); !ok {
		return library.Genre{}, false
	}
	return g, true
}

// ReaderMapper maps readers. The birth date keeps the calendar day only.
type ReaderMapper struct{}

func (ReaderMapper) ToRecord(rd library.Reader) cache.Record {
	r := cache.Record{
		fieldNumber:     rd.Number,
		fieldUserID:     rd.UserID.String(),
		fieldUsername:   rd.Username,
		fieldFullName:   rd.FullName,
		fieldPhone:      rd.PhoneNumber,
		fieldBirthDate:  rd.BirthDate.Format(BirthDateLayout),
		fieldGDPR:       strconv.FormatBool(rd.GDPRConsent),
		fieldMarketing:  strconv.FormatBool(rd.MarketingConsent),
		fieldThirdParty: strconv.FormatBool(rd.ThirdPartyConsent),
		fieldVersion:    formatInt(rd.Version),
	}
	putOptional(r, fieldPhoto, rd.Photo)
	return r
}

func (ReaderMapper) FromRecord(r cache.Record) (library.Reader, bool) {
	if !has(r, fieldNumber, fieldUserID, fieldUsername, fieldFullName, fieldPhone,
		fieldBirthDate, fieldGDPR, fieldMarketing, fieldThirdParty, fieldVersion) {
		return library.Reader{}, false
	}
	if r[fieldNumber] == "" {
		return library.Reader{}, false
	}

	rd := library.Reader{
		Number:      r[fieldNumber],
		Username:    r[fieldUsername],
		FullName:    r[fieldFullName],
		PhoneNumber: r[fieldPhone],
		Photo:       optional(r, fieldPhoto),
	}

	var err error
	if rd.UserID, err = uuid.Parse(r[fieldUserID]); err != nil {
		return library.Reader{}, false
	}
	if rd.BirthDate, err = time.Parse(BirthDateLayout, r[fieldBirthDate]); err != nil {
		return library.Reader{}, false
	}
	if rd.GDPRConsent, err = strconv.ParseBool(r[fieldGDPR]); err != nil {
		return library.Reader{}, false
	}
	if rd.MarketingConsent, err = strconv.ParseBool(r[fieldMarketing]); err != nil {
		return library.Reader{}, false
	}
	if rd.ThirdPartyConsent, err = strconv.ParseBool(r[fieldThirdParty]); err != nil {
		return library.Reader{}, false
	}
	var ok bool
	if rd.Version, ok = parseInt(r[fieldVersion]); !ok {
		return library.Reader{}, false
	}
	return rd, true
}

func has(r cache.Record, fields ...string) bool {
	for _, f := range fields {
		if _, ok := r[f]; !ok {
			return false
		}
	}
	return true
}

func putOptional(r cache.Record, field string, v *string) {
	if v != nil {
		r[field] = *v
	}
}

func optional(r cache.Record, field string) *string {
	v, ok := r[field]
	if !ok {
		return nil
	}
	return &v
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// parseIDList decodes a comma separated id list. Blank input is an empty list;
// any element that is not a number fails the whole list.
func parseIDList(s string) ([]int64, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, ok := parseInt(p)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
