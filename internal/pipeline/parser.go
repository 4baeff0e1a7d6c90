package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Supported statement file formats, derived from the upload filename.
const (
	FormatCSV = "csv"
	FormatXML = "xml"
)

// ErrUnsupportedFormat indicates a file extension other than csv or xml.
// It is fatal for the job and not retryable.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseError wraps a malformed-input failure from one of the format parsers.
// It aborts the job before any validation runs.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s statement: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CSV columns are positionally bound; statement exports carry no header row.
const (
	csvNumFields       = 6
	csvColReference    = 0
	csvColAccountNum   = 1
	csvColDescription  = 2
	csvColStartBalance = 3
	csvColMutation     = 4
	csvColEndBalance   = 5
)

// Parse converts raw statement file bytes into an ordered sequence of field
// maps. ext is the declared file extension without the leading dot.
func Parse(data []byte, ext string) ([]RawRecord, error) {
	switch strings.ToLower(ext) {
	case FormatCSV:
		return parseCSV(data)
	case FormatXML:
		return parseXML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// parseCSV reads a headerless statement CSV. All cells are trimmed; the two
// balance columns must convert to numbers or the whole parse fails, not just
// the offending row.
func parseCSV(data []byte) ([]RawRecord, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = csvNumFields

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Format: FormatCSV, Err: err}
	}

	records := make([]RawRecord, 0, len(rows))
	for i, row := range rows {
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}

		startBalance, err := strconv.ParseFloat(row[csvColStartBalance], 64)
		if err != nil {
			return nil, &ParseError{
				Format: FormatCSV,
				Err:    fmt.Errorf("row %d: startBalance %q is not a number", i+1, row[csvColStartBalance]),
			}
		}
		endBalance, err := strconv.ParseFloat(row[csvColEndBalance], 64)
		if err != nil {
			return nil, &ParseError{
				Format: FormatCSV,
				Err:    fmt.Errorf("row %d: endBalance %q is not a number", i+1, row[csvColEndBalance]),
			}
		}

		records = append(records, RawRecord{
			fieldReference:     row[csvColReference],
			fieldAccountNumber: row[csvColAccountNum],
			fieldDescription:   row[csvColDescription],
			fieldStartBalance:  startBalance,
			fieldMutation:      row[csvColMutation],
			fieldEndBalance:    endBalance,
		})
	}
	return records, nil
}

// xmlRecord carries one record element; all fields live in its attributes.
type xmlRecord struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

// xmlDocument matches the record collection under the document root.
type xmlDocument struct {
	Records []xmlRecord `xml:"record"`
}

// parseXML reads record elements whose attributes form the field map. The
// balance attributes are converted to floats here; a value that does not
// convert becomes NaN so that validation fails that record alone rather
// than the whole file.
func parseXML(data []byte) ([]RawRecord, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: FormatXML, Err: err}
	}

	records := make([]RawRecord, 0, len(doc.Records))
	for _, rec := range doc.Records {
		record := make(RawRecord, len(rec.Attrs))
		for _, attr := range rec.Attrs {
			value := strings.TrimSpace(attr.Value)
			switch attr.Name.Local {
			case fieldStartBalance, fieldEndBalance:
				f, err := strconv.ParseFloat(value, 64)
				if err != nil {
					f = math.NaN()
				}
				record[attr.Name.Local] = f
			default:
				record[attr.Name.Local] = value
			}
		}
		records = append(records, record)
	}
	return records, nil
}
