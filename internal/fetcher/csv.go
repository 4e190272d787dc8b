package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune            // default ','
	HasHeader bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh  chan<- []string // optional: receives the header row
	Comment   rune            // comment character (0 = none)
	TrimSpace bool
}

// StreamCSV reads CSV rows from r and sends them on the returned channel.
// The caller must drain the row channel. At most one error is sent. Both
// channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		send := func(ch chan<- []string, rec []string) bool {
			select {
			case ch <- rec:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return false
			}
		}

		headerPending := opts.HasHeader
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if headerPending {
				headerPending = false
				if opts.HeaderCh != nil && !send(opts.HeaderCh, record) {
					return
				}
				continue
			}

			if !send(rowCh, record) {
				return
			}
		}
	}()

	return rowCh, errCh
}

// HeaderIndex maps upper-cased, trimmed column names to their position.
func HeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		// Strip a UTF-8 BOM that some exports put on the first column.
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return idx
}

// Field returns row[idx[name]], or "" when the column is absent or the row is
// short.
func Field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
