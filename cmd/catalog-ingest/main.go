// Command catalog-ingest loads the known barcode corpus into the database.
// It streams gzipped catalog exports (one barcode per line), merges them, and
// replaces the known_codes table in a single transaction. The server primes
// its scan pre-filter from that table on start.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/uzpos/kassa/internal/storage/postgres"
)

const (
	minCodeLen    = 6
	maxCodeLen    = 14
	progressEvery = 1_000_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz barcode exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
		if err != nil {
			return errors.Wrap(err, "glob data dir")
		}
		files = matches
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz exports found in %s", dataDir)
	}

	slog.Info("scanning exports", slog.Int("files", len(files)))

	codes, err := collectCodes(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("unique barcodes collected", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("nothing to write")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.NewCodeStore(pool).ReplaceAll(ctx, codes); err != nil {
		return errors.Wrap(err, "replace known codes")
	}

	slog.Info("known codes replaced", slog.Int("count", len(codes)))
	return nil
}

// collectCodes streams every export concurrently and merges the barcodes into
// one deduplicated list.
func collectCodes(ctx context.Context, files []string) ([]string, error) {
	var (
		mu     sync.Mutex
		unique = make(map[string]struct{})
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			local := make(map[string]struct{})
			var count uint64

			if err := streamGzFile(ctx, path, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				local[code] = struct{}{}
				count++
				if count%progressEvery == 0 {
					slog.Info("scan progress",
						slog.Int("file", i+1),
						slog.Uint64("codes", count),
					)
				}
			}); err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}

			slog.Info("scan complete",
				slog.Int("file", i+1),
				slog.Uint64("total_codes", count),
				slog.Int("unique", len(local)),
			)

			mu.Lock()
			for code := range local {
				unique[code] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(unique))
	for code := range unique {
		out = append(out, code)
	}
	return out, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
