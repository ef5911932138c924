// Package codec serializes record batches to and from exchange files. The
// CSV codec speaks flat rows, the XML codec speaks the nested shape of the
// profile tree. Both append across invocations so a paged run can write one
// file over many requests.
package codec

import (
	"fmt"
	"strconv"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
)

// Supported file formats.
const (
	FormatCSV = "csv"
	FormatXML = "xml"
)

// IsValidFormat reports whether the engine can read and write the format.
func IsValidFormat(format string) bool {
	return format == FormatCSV || format == FormatXML
}

// FileCodec reads and writes one exchange file.
//
// AppendBatch appends, never overwrites, so chunked runs build the file
// across invocations. ReadBatch returns the records in the window plus
// whether the file is exhausted at the window's end. TotalCount streams the
// file to count top-level records without materializing it. Close finalizes
// the file (the XML codec writes its closing envelope there).
type FileCodec interface {
	AppendBatch(records []adapter.Record) error
	ReadBatch(offset, limit int) ([]adapter.Record, bool, error)
	TotalCount() (int, error)
	HasTreeStructure() bool
	Close() error
}

// New builds the codec for a format over the given file path.
func New(format string, tree *profile.Tree, path string) (FileCodec, error) {
	switch format {
	case FormatCSV:
		return NewCSVCodec(tree, path), nil
	case FormatXML:
		return NewXMLCodec(tree, path)
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
}

// valueString renders a record value as file text.
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
