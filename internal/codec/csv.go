package codec

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
)

// CSVCodec is the flat codec: one row per record, header row derived from
// the profile tree's leaf names in pre-order.
type CSVCodec struct {
	path   string
	header []string
}

// NewCSVCodec builds a CSV codec over the given file path.
func NewCSVCodec(tree *profile.Tree, path string) *CSVCodec {
	leaves := tree.Leaves()
	header := make([]string, 0, len(leaves))
	for _, l := range leaves {
		header = append(header, l.Name)
	}
	return &CSVCodec{path: path, header: header}
}

// HasTreeStructure reports flat input.
func (c *CSVCodec) HasTreeStructure() bool { return false }

// AppendBatch writes rows to the end of the file, emitting the header row
// once when the file starts empty.
func (c *CSVCodec) AppendBatch(records []adapter.Record) error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(c.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	row := make([]string, len(c.header))
	for _, rec := range records {
		for i, name := range c.header {
			row[i] = valueString(rec[name])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadBatch returns up to limit records starting at offset, and whether the
// file holds no records past the window.
func (c *CSVCodec) ReadBatch(offset, limit int) ([]adapter.Record, bool, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("read csv header: %w", err)
	}

	for skipped := 0; skipped < offset; skipped++ {
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("skip csv row: %w", err)
		}
	}

	var out []adapter.Record
	for len(out) < limit {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, true, nil
			}
			return nil, false, fmt.Errorf("read csv row: %w", err)
		}
		rec := make(adapter.Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		out = append(out, rec)
	}

	// Peek one row past the window to tell a full last page apart from
	// more data.
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return out, true, nil
		}
		return nil, false, fmt.Errorf("read csv row: %w", err)
	}
	return out, false, nil
}

// TotalCount streams the file and counts data rows.
func (c *CSVCodec) TotalCount() (int, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(skipBOM(f))
	r.FieldsPerRecord = -1

	count := -1 // header row does not count
	for {
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("count csv rows: %w", err)
		}
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// Close is a no-op: CSV files carry no footer.
func (c *CSVCodec) Close() error { return nil }

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet exports
// commonly prepend.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		br.Discard(3)
	}
	return br
}
