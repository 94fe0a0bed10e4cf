// Command coupon-import loads bulk marketing campaign codes into the coupons
// table. Campaign code lists arrive as large gzipped files, one code per
// line, from several affiliate feeds; a code is only accepted when it appears
// in at least two feeds. The cross-check uses per-file bloom filters so the
// full code sets never have to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/solekart/checkout/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 5_000_000
	minCodeLen    = 8
	maxCodeLen    = 12
)

const upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount_value, min_purchase, expires_at, max_uses, uses_per_user, is_public)
	VALUES ($1, 'percent', $2, $3, $4, 0, 1, TRUE)
	ON CONFLICT (code) DO UPDATE SET
		discount_value = EXCLUDED.discount_value,
		min_purchase   = EXCLUDED.min_purchase,
		expires_at     = EXCLUDED.expires_at`

func main() {
	var (
		databaseURL string
		percentOff  int
		minPurchase int64
		validDays   int
		files       stringList
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&percentOff, "percent", 10, "percent discount granted by imported codes")
	flag.Int64Var(&minPurchase, "min-purchase", 0, "minimum order subtotal for imported codes")
	flag.IntVar(&validDays, "valid-days", 30, "days until imported codes expire")
	flag.Var(&files, "file", "gzipped code list (repeat; at least two feeds required)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if len(files) < 2 {
		slog.Error("at least two --file feeds are required for cross-checking")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	expiresAt := time.Now().AddDate(0, 0, validDays)
	if err := run(ctx, databaseURL, files, decimal.NewFromInt(int64(percentOff)), minPurchase, expiresAt); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

type stringList []string

func (l *stringList) String() string { return "" }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func run(
	ctx context.Context,
	databaseURL string,
	files []string,
	percent decimal.Decimal,
	minPurchase int64,
	expiresAt time.Time,
) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: one bloom filter per feed, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: re-stream each feed and keep codes seen in 2+ feeds.
	slog.Info("pass 2: cross-checking feeds")

	validCodes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))
	if len(validCodes) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("writing coupons", slog.Int("count", len(validCodes)))

	batch := &pgx.Batch{}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert coupon batch")
		}
		batch = &pgx.Batch{}
		return nil
	}
	for i, code := range validCodes {
		batch.Queue(upsertCouponSQL, code, percent, minPurchase, expiresAt)
		if batch.Len() >= 500 {
			if err := flush(); err != nil {
				return err
			}
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(validCodes)))
		}
	}
	return flush()
}

func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete", slog.Int("file", idx+1), slog.Uint64("total_codes", count))
		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each feed and checks codes against the OTHER
// feeds' bloom filters. A code is valid when it appears in 2 or more feeds.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge per-feed bitmasks; one bit per feed the code was seen in.
	merged := make(map[string]uint)
	for _, candidates := range results {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []map[string]uint,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete", slog.Int("file", idx+1), slog.Int("candidates", len(candidates)))
		results[idx] = candidates
		return nil
	}
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
