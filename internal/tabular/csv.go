package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrUnsupportedFileType is returned for extensions the decoder does not
// handle. Spreadsheet formats are registered but decoded upstream.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// DecodeFile decodes a tabular file by extension. Only .csv is supported.
func DecodeFile(path, ext string) (*Batch, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return DecodeCSV(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
}

// DecodeCSV reads a header row plus data rows. Cells holding a null token
// (empty, na, n/a, nan, null, none) decode to null; everything else stays a
// string. Typed interpretation happens downstream against the contract.
func DecodeCSV(r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// ragged rows are padded with nulls rather than rejected
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	batch, err := NewBatch(header)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row %d: %w", batch.RowCount()+2, err)
		}
		row := make([]Value, len(header))
		for i := range header {
			cell := ""
			if i < len(record) {
				cell = record[i]
			}
			if IsNullToken(cell) {
				row[i] = Null()
			} else {
				row[i] = StringValue(cell)
			}
		}
		if err := batch.AppendRow(row); err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
	}
	return batch, nil
}
