// Command libcache reads the library through the cached repositories.
//
//	libcache [-config file] migrate
//	libcache [-config file] book isbn|title|genre|author|authorid|top <value>
//	libcache [-config file] author number|name|prefix|coauthors|top <value>
//	libcache [-config file] genre all|name|top [value]
//	libcache [-config file] reader number|username|userid|phone|top <value>
//
// "top" takes an optional RFC 3339 start time and lists the ten most lent
// entities since then, defaulting to the last 30 days.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goliatone/go-library-cache/config"
	"github.com/goliatone/go-library-cache/pkg/di"
	"github.com/goliatone/go-library-cache/repositorycache"
	"github.com/google/uuid"
)

const topLimit = 10

var errUsage = errors.New("usage: libcache [-config file] migrate|book|author|genre|reader <query> [value]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "libcache:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("libcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "YAML config file; LIBCACHE_* variables override it")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "migrate" {
		if err := container.Migrate(ctx); err != nil {
			return err
		}
		container.Logger().Info("schema ready", repositorycache.Fields{"driver": cfg.Source.Driver})
		return nil
	}

	if len(rest) == 0 {
		return errUsage
	}
	query, value := rest[0], ""
	if len(rest) > 1 {
		value = rest[1]
	}

	var out any
	switch cmd {
	case "book":
		out, err = bookQuery(ctx, container, query, value)
	case "author":
		out, err = authorQuery(ctx, container, query, value)
	case "genre":
		out, err = genreQuery(ctx, container, query, value)
	case "reader":
		out, err = readerQuery(ctx, container, query, value)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	return printJSON(stdout, out)
}

func bookQuery(ctx context.Context, c *di.Container, query, value string) (any, error) {
	books := c.Books()
	switch query {
	case "isbn":
		return found(books.FindByISBN(ctx, value))
	case "title":
		return books.FindByTitle(ctx, value)
	case "genre":
		return books.FindByGenre(ctx, value)
	case "author":
		return books.FindByAuthorName(ctx, value)
	case "authorid":
		n, err := parseNumber(value)
		if err != nil {
			return nil, err
		}
		return books.FindByAuthorNumber(ctx, n)
	case "top":
		since, err := parseSince(value)
		if err != nil {
			return nil, err
		}
		return books.TopLent(ctx, since, topLimit)
	}
	return nil, errUsage
}

func authorQuery(ctx context.Context, c *di.Container, query, value string) (any, error) {
	authors := c.Authors()
	switch query {
	case "number":
		n, err := parseNumber(value)
		if err != nil {
			return nil, err
		}
		return found(authors.FindByNumber(ctx, n))
	case "name":
		return authors.FindByName(ctx, value)
	case "prefix":
		return authors.FindByNamePrefix(ctx, value)
	case "coauthors":
		n, err := parseNumber(value)
		if err != nil {
			return nil, err
		}
		return authors.CoAuthors(ctx, n)
	case "top":
		since, err := parseSince(value)
		if err != nil {
			return nil, err
		}
		return authors.TopByLendings(ctx, since, topLimit)
	}
	return nil, errUsage
}

func genreQuery(ctx context.Context, c *di.Container, query, value string) (any, error) {
	genres := c.Genres()
	switch query {
	case "all":
		return genres.FindAll(ctx)
	case "name":
		return found(genres.FindByName(ctx, value))
	case "top":
		return genres.TopByBookCount(ctx, topLimit)
	}
	return nil, errUsage
}

func readerQuery(ctx context.Context, c *di.Container, query, value string) (any, error) {
	readers := c.Readers()
	switch query {
	case "number":
		return found(readers.FindByNumber(ctx, value))
	case "username":
		return found(readers.FindByUsername(ctx, value))
	case "userid":
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("user id %q: %w", value, err)
		}
		return found(readers.FindByUserID(ctx, id))
	case "phone":
		return readers.FindByPhoneNumber(ctx, value)
	case "top":
		since, err := parseSince(value)
		if err != nil {
			return nil, err
		}
		return readers.TopReaders(ctx, since, topLimit)
	}
	return nil, errUsage
}

// found turns a not-found result into nil so it prints as null.
func found[T any](v T, ok bool, err error) (any, error) {
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func parseNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, err)
	}
	return n, nil
}

func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Now().AddDate(0, 0, -30), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("since %q: %w", s, err)
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
