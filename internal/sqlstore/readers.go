package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-library-cache/library"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const birthDateLayout = time.DateOnly

// ReaderStore is the relational source for readers. New readers get the next
// "YYYY/seq" number of the year they register in and a random user id unless
// one is given.
type ReaderStore struct {
	db  bun.IDB
	now func() time.Time
}

// ReaderOption configures a ReaderStore.
type ReaderOption func(*ReaderStore)

// WithClock sets the clock used for reader numbers and registration times.
func WithClock(now func() time.Time) ReaderOption {
	return func(s *ReaderStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewReaderStore(db bun.IDB, opts ...ReaderOption) *ReaderStore {
	s := &ReaderStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReaderStore) FindByNumber(ctx context.Context, number string) (library.Reader, bool, error) {
	return s.findOne(ctx, "find reader by number", "r.number = ?", strings.TrimSpace(number))
}

func (s *ReaderStore) FindByUsername(ctx context.Context, username string) (library.Reader, bool, error) {
	return s.findOne(ctx, "find reader by username", "r.username_key = ?", normalize(username))
}

func (s *ReaderStore) FindByUserID(ctx context.Context, id uuid.UUID) (library.Reader, bool, error) {
	return s.findOne(ctx, "find reader by user id", "r.user_id = ?", id.String())
}

func (s *ReaderStore) FindByPhoneNumber(ctx context.Context, phone string) ([]library.Reader, error) {
	readers, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("r.phone_number = ?", strings.TrimSpace(phone))
	})
	return readers, wrap("find readers by phone number", err)
}

func (s *ReaderStore) Save(ctx context.Context, rd library.Reader) (library.Reader, error) {
	m := toReaderModel(rd)

	if strings.TrimSpace(rd.Number) == "" {
		err := inTx(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
			now := s.now().UTC()
			number, err := s.nextNumber(ctx, tx, now.Year())
			if err != nil {
				return err
			}
			m.Number = number
			m.Version = 1
			m.CreatedAt = now
			if rd.UserID == uuid.Nil {
				m.UserID = uuid.NewString()
			}
			_, err = tx.NewInsert().Model(&m).Exec(ctx)
			return err
		})
		if err != nil {
			return library.Reader{}, wrap("insert reader", err)
		}
		return m.toReader()
	}

	m.Version = rd.Version + 1
	res, err := s.db.NewUpdate().Model(&m).
		WherePK().
		ExcludeColumn("created_at").
		Where("version = ?", rd.Version).
		Exec(ctx)
	if err == nil {
		err = expectRow(res)
	}
	if err != nil {
		return library.Reader{}, wrap("update reader", err)
	}
	return m.toReader()
}

// Delete removes the reader. Lendings are kept for the statistics.
func (s *ReaderStore) Delete(ctx context.Context, rd library.Reader) error {
	res, err := s.db.NewDelete().Model((*readerModel)(nil)).
		Where("number = ?", strings.TrimSpace(rd.Number)).
		Where("version = ?", rd.Version).
		Exec(ctx)
	if err == nil {
		err = expectRow(res)
	}
	return wrap("delete reader", err)
}

// CountThisYear counts the readers registered in the calendar year of now.
func (s *ReaderStore) CountThisYear(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.db.NewSelect().Model((*readerModel)(nil)).
		Where("r.number LIKE ?", yearPrefix(now.UTC().Year())).
		Count(ctx)
	if err != nil {
		return 0, wrap("count readers this year", err)
	}
	return int64(n), nil
}

// TopReaders ranks readers by the lendings they started since the given time.
func (s *ReaderStore) TopReaders(ctx context.Context, since time.Time, limit int) ([]library.ReaderLendings, error) {
	var rows []countRow
	err := s.db.NewSelect().
		TableExpr("lendings AS l").
		ColumnExpr("l.reader_number AS ref").
		ColumnExpr("count(*) AS total").
		Where("l.start_date >= ?", since.UTC()).
		GroupExpr("l.reader_number").
		OrderExpr("total DESC, l.reader_number ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap("top readers", err)
	}
	out, err := s.withReaders(ctx, rows)
	return out, wrap("top readers", err)
}

// TopByGenre ranks readers by how many books of the genre they borrowed.
func (s *ReaderStore) TopByGenre(ctx context.Context, genre string, limit int) ([]library.ReaderLendings, error) {
	var rows []countRow
	err := s.db.NewSelect().
		TableExpr("lendings AS l").
		ColumnExpr("l.reader_number AS ref").
		ColumnExpr("count(*) AS total").
		Join("JOIN books AS b ON b.id = l.book_id").
		Where("b.genre_key = ?", normalize(genre)).
		GroupExpr("l.reader_number").
		OrderExpr("total DESC, l.reader_number ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, wrap("top readers by genre", err)
	}
	out, err := s.withReaders(ctx, rows)
	return out, wrap("top readers by genre", err)
}

// Search combines the non-empty fields of q: the name matches a substring of
// the full name, phone number and username match exactly.
func (s *ReaderStore) Search(ctx context.Context, q library.ReaderQuery) ([]library.Reader, error) {
	readers, err := s.list(ctx, func(sq *bun.SelectQuery) *bun.SelectQuery {
		if name := strings.TrimSpace(q.Name); name != "" {
			sq = sq.Where(`r.full_name_key LIKE ? ESCAPE '\'`, likeContains(name))
		}
		if phone := strings.TrimSpace(q.PhoneNumber); phone != "" {
			sq = sq.Where("r.phone_number = ?", phone)
		}
		if username := normalize(q.Username); username != "" {
			sq = sq.Where("r.username_key = ?", username)
		}
		return sq
	})
	return readers, wrap("search readers", err)
}

func (s *ReaderStore) findOne(ctx context.Context, op, where string, arg any) (library.Reader, bool, error) {
	var m readerModel
	err := s.db.NewSelect().Model(&m).Where(where, arg).Limit(1).Scan(ctx)
	if isNoRows(err) {
		return library.Reader{}, false, nil
	}
	if err != nil {
		return library.Reader{}, false, wrap(op, err)
	}
	rd, err := m.toReader()
	if err != nil {
		return library.Reader{}, false, wrap(op, err)
	}
	return rd, true, nil
}

func (s *ReaderStore) list(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]library.Reader, error) {
	var ms []readerModel
	if err := filter(s.db.NewSelect().Model(&ms)).OrderExpr("r.number ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]library.Reader, 0, len(ms))
	for _, m := range ms {
		rd, err := m.toReader()
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

func (s *ReaderStore) withReaders(ctx context.Context, rows []countRow) ([]library.ReaderLendings, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	numbers := make([]string, len(rows))
	for i, r := range rows {
		numbers[i] = r.Ref
	}
	readers, err := s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("r.number IN (?)", bun.In(numbers))
	})
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]library.Reader, len(readers))
	for _, rd := range readers {
		byNumber[rd.Number] = rd
	}

	out := make([]library.ReaderLendings, 0, len(rows))
	for _, r := range rows {
		if rd, ok := byNumber[r.Ref]; ok {
			out = append(out, library.ReaderLendings{Reader: rd, Lendings: r.Total})
		}
	}
	return out, nil
}

// nextNumber returns the next free reader number of year.
func (s *ReaderStore) nextNumber(ctx context.Context, db bun.IDB, year int) (string, error) {
	var numbers []string
	err := db.NewSelect().Model((*readerModel)(nil)).
		Column("number").
		Where("r.number LIKE ?", yearPrefix(year)).
		Scan(ctx, &numbers)
	if err != nil {
		return "", err
	}

	next := 1
	for _, n := range numbers {
		_, seq, ok := strings.Cut(n, "/")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(seq); err == nil && v >= next {
			next = v + 1
		}
	}
	return fmt.Sprintf("%d/%d", year, next), nil
}

func yearPrefix(year int) string {
	return strconv.Itoa(year) + "/%"
}

func toReaderModel(rd library.Reader) readerModel {
	m := readerModel{
		Number:            strings.TrimSpace(rd.Number),
		Username:          strings.TrimSpace(rd.Username),
		UsernameKey:       normalize(rd.Username),
		FullName:          rd.FullName,
		FullNameKey:       normalize(rd.FullName),
		PhoneNumber:       strings.TrimSpace(rd.PhoneNumber),
		BirthDate:         rd.BirthDate.Format(birthDateLayout),
		GDPRConsent:       rd.GDPRConsent,
		MarketingConsent:  rd.MarketingConsent,
		ThirdPartyConsent: rd.ThirdPartyConsent,
		Photo:             rd.Photo,
	}
	if rd.UserID != uuid.Nil {
		m.UserID = rd.UserID.String()
	}
	return m
}

func (m readerModel) toReader() (library.Reader, error) {
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return library.Reader{}, fmt.Errorf("reader %s: user id: %w", m.Number, err)
	}
	birth, err := time.Parse(birthDateLayout, m.BirthDate)
	if err != nil {
		return library.Reader{}, fmt.Errorf("reader %s: birth date: %w", m.Number, err)
	}
	return library.Reader{
		Number:            m.Number,
		UserID:            userID,
		Username:          m.Username,
		FullName:          m.FullName,
		PhoneNumber:       m.PhoneNumber,
		BirthDate:         birth,
		GDPRConsent:       m.GDPRConsent,
		MarketingConsent:  m.MarketingConsent,
		ThirdPartyConsent: m.ThirdPartyConsent,
		Photo:             m.Photo,
		Version:           m.Version,
	}, nil
}
