// Package dedcsv imports and exports a predicate's extent as CSV: first
// line is a header of column names, one record per line thereafter,
// comma-delimited, cell values decoded and encoded through the
// predicate's own ColumnType.Parse/Format.
package dedcsv

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/tuplespace/ded"
)

// CellError reports a single cell's decode failure, with enough context
// (row/column coordinates) to point a host at the offending input.
type CellError struct {
	Row    int // 1-based, counting the header as row 0
	Column int
	Header string
	Cause  error
}

func (e *CellError) Error() string {
	return errors.Wrapf(e.Cause, "dedcsv: row %d, column %d (%s)", e.Row, e.Column, e.Header).Error()
}

func (e *CellError) Unwrap() error { return e.Cause }

// Import reads CSV from r into pred via AddRow, treating the first line
// as a header naming columns in file order (not necessarily pred's
// declared order). Column i's cell is decoded with pred's i-th
// ColumnType.Parse. A malformed cell is reported as a *CellError rather
// than aborting the whole import; Import keeps reading and returns every
// such error it collects, via a multi-error join.
func Import(pred *ded.Predicate, r io.Reader) (rowsAdded int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, readErr := reader.Read()
	if readErr != nil {
		if readErr == io.EOF {
			return 0, nil
		}
		return 0, errors.Wrap(readErr, "dedcsv: reading header")
	}

	cols := pred.Columns
	if len(header) != len(cols) {
		return 0, errors.Errorf("dedcsv: header has %d columns, predicate %s has %d", len(header), pred.Name, len(cols))
	}

	var errs []error
	rowNum := 0
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return rowsAdded, errors.Wrap(readErr, "dedcsv: reading record")
		}
		rowNum++
		if len(record) != len(cols) {
			errs = append(errs, &CellError{Row: rowNum, Column: -1, Header: "(row)", Cause: errors.Errorf("expected %d fields, got %d", len(cols), len(record))})
			continue
		}

		values := make([]any, len(cols))
		rowOK := true
		for i, field := range record {
			v, parseErr := cols[i].Type.Parse(field)
			if parseErr != nil {
				errs = append(errs, &CellError{Row: rowNum, Column: i, Header: header[i], Cause: parseErr})
				rowOK = false
				continue
			}
			values[i] = v
		}
		if !rowOK {
			continue
		}
		if _, addErr := pred.AddRow(values...); addErr != nil {
			errs = append(errs, &CellError{Row: rowNum, Column: -1, Header: "(row)", Cause: addErr})
			continue
		}
		rowsAdded++
	}

	if len(errs) > 0 {
		return rowsAdded, joinErrors(errs)
	}
	return rowsAdded, nil
}

// Export writes pred's current extent to w as CSV, with a header line of
// column names followed by one record per row, each cell formatted with
// its column's ColumnType.Format.
func Export(pred *ded.Predicate, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := make([]string, len(pred.Columns))
	for i, c := range pred.Columns {
		header[i] = c.Name
	}
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "dedcsv: writing header")
	}

	for _, row := range pred.Rows() {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = pred.Columns[i].Type.Format(v)
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, "dedcsv: writing record")
		}
	}
	return writer.Error()
}

// joinErrors collapses several per-cell errors into one error whose
// message lists each. The result is a plain error: the individual
// *CellError values are not reachable through errors.Is or errors.As.
func joinErrors(errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return errors.Errorf("dedcsv: %d cell error(s):\n%s", len(errs), joinLines(msgs))
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
