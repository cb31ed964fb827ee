// Package importer reads bank statement exports into new ledger
// transactions.
package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ledger/internal/core"
)

// Accepted date layouts, tried in order. Date-only values are midnight in
// the import location.
var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2/01/2006",
}

var ErrColumns = errors.New("expected 3 columns (date, description, amount)")

// Batch is the outcome of parsing one file. Rows holds every line that
// parsed; Errors holds one entry per rejected line.
type Batch struct {
	Rows   []core.NewTransaction
	Errors []error
}

// ParseCSV reads date,description,amount records. A first line whose date
// column reads "date" is treated as a header. Amounts are signed decimals in
// major units. Timestamps are interpreted in loc (UTC when nil).
func ParseCSV(r io.Reader, loc *time.Location) (Batch, error) {
	if loc == nil {
		loc = time.UTC
	}

	var batch Batch
	br := bufio.NewReader(r)
	if err := skipBOM(br); err != nil {
		return batch, fmt.Errorf("read csv: %w", err)
	}
	csvr := csv.NewReader(br)
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	first := true
	for {
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				first = false
				batch.Errors = append(batch.Errors, fmt.Errorf("line %d: %w", perr.StartLine, err))
				continue
			}
			return batch, fmt.Errorf("read csv: %w", err)
		}
		// line where the record starts; quoted fields may span several
		line, _ := csvr.FieldPos(0)
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		row, err := parseRecord(rec, loc)
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date")
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(br *bufio.Reader) error {
	b, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return err
	}
	if len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, err = br.Discard(3)
		return err
	}
	return nil
}

func parseRecord(rec []string, loc *time.Location) (core.NewTransaction, error) {
	if len(rec) < 3 {
		return core.NewTransaction{}, ErrColumns
	}

	ts, err := parseDate(rec[0], loc)
	if err != nil {
		return core.NewTransaction{}, fmt.Errorf("date: %w", err)
	}
	desc := strings.Join(strings.Fields(rec[1]), " ")
	if desc == "" {
		return core.NewTransaction{}, core.ErrEmptyDescription
	}
	amount, err := core.ParseDecimalToCents(rec[2])
	if err != nil {
		return core.NewTransaction{}, fmt.Errorf("amount %q: %w", rec[2], err)
	}

	return core.NewTransaction{Description: desc, Timestamp: ts, Amount: amount}, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
