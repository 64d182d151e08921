// Load strategies for staging tables.
//
// The fast path serializes rows into the landing store's native COPY text
// format (tab-delimited, \N as the NULL sentinel) and streams the payload
// over the wire protocol. The fallback path issues batched multi-row
// INSERTs, one transaction per batch. Both paths consume the same row
// channel and produce identical final row counts for identical input.
package extract

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"reconcile/internal/ddl"
	"reconcile/internal/landing"
)

// copyNull is the reserved NULL sentinel of the COPY text format. It cannot
// collide with data because literal backslashes are escaped.
const copyNull = `\N`

// FastLoad streams rows into table via the COPY protocol. Returns the number
// of rows the landing store reports as loaded.
func FastLoad(
	ctx context.Context,
	store landing.Store,
	schema, table string,
	columns []string,
	in <-chan []any,
) (int64, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ddl.QuoteIdent(c)
	}
	copySQL := fmt.Sprintf("COPY %s (%s) FROM STDIN",
		ddl.Qualify(schema, table), strings.Join(quoted, ", "))

	pr, pw := io.Pipe()
	go func() {
		var sb strings.Builder
		for {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case row, ok := <-in:
				if !ok {
					pw.Close()
					return
				}
				sb.Reset()
				for i, v := range row {
					if i > 0 {
						sb.WriteByte('\t')
					}
					sb.WriteString(encodeCopyValue(v))
				}
				sb.WriteByte('\n')
				if _, err := io.WriteString(pw, sb.String()); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
		}
	}()

	n, err := store.CopyText(ctx, copySQL, pr)
	if err != nil {
		// Stop the encoder goroutine if it is still writing.
		pr.CloseWithError(err)
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// BatchLoad drains rows from in, groups them into batches of batchSize, and
// inserts each batch with one multi-row INSERT inside its own transaction.
// Progress is logged per flush with instantaneous rows/sec.
func BatchLoad(
	ctx context.Context,
	store landing.Store,
	schema, table string,
	columns []string,
	in <-chan []any,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ddl.QuoteIdent(c)
	}
	insertPrefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		ddl.Qualify(schema, table), strings.Join(quoted, ", "))

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sql, args := buildInsert(insertPrefix, len(columns), batch)
		err := store.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("insert batch into %s: %w", table, err)
		}
		n := int64(len(batch))
		total += n
		batches++
		batch = batch[:0]

		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf("load batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
			batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
		lastFlushTS = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// buildInsert renders a multi-row VALUES clause with positional parameters
// and the flattened argument list.
func buildInsert(prefix string, ncols int, batch [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString(prefix)
	args := make([]any, 0, len(batch)*ncols)
	p := 1
	for i, row := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 0; j < ncols; j++ {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(p))
			p++
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}
	return sb.String(), args
}

// encodeCopyValue renders one value in COPY text format. nil becomes the \N
// sentinel; everything else is escaped so delimiters inside data survive.
func encodeCopyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return copyNull
	case string:
		return escapeCopyText(t)
	case []byte:
		return escapeCopyText(string(t))
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05.999999+00")
	case bool:
		if t {
			return "t"
		}
		return "f"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return escapeCopyText(fmt.Sprint(t))
	}
}

var copyEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	"\b", `\b`,
	"\f", `\f`,
	"\v", `\v`,
)

func escapeCopyText(s string) string { return copyEscaper.Replace(s) }
