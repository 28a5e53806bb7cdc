package exports

import (
	"bufio"
	"encoding/csv"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"neo-import-export/common"
	"neo-import-export/logger"
	"neo-import-export/neos"
)

// Format is an export file format
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// Formats lists the supported export formats
var Formats = []string{string(FormatCSV), string(FormatJSON), string(FormatNDJSON)}

// CSVFields is the tabular export header, in column order
var CSVFields = []string{
	"datetime_utc", "distance_au", "velocity_km_s",
	"designation", "name", "diameter_km", "potentially_hazardous",
}

// FlushEvery controls how many CSV/NDJSON rows are buffered between flushes
const FlushEvery = 1000

// ApproachDocument is one entry of the structured export
type ApproachDocument struct {
	DatetimeUTC string      `json:"datetime_utc"`
	DistanceAU  float64     `json:"distance_au"`
	VelocityKmS float64     `json:"velocity_km_s"`
	NEO         NEODocument `json:"neo"`
}

// NEODocument is the nested NEO object of a structured export entry.
// Unknown name and diameter are written as null.
type NEODocument struct {
	Designation          string   `json:"designation"`
	Name                 *string  `json:"name"`
	DiameterKm           *float64 `json:"diameter_km"`
	PotentiallyHazardous bool     `json:"potentially_hazardous"`
}

// ParseFormat validates a format name
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if verr := common.ValidateEnum("format", name, Formats); verr != nil {
		return "", common.NewError(common.ErrorTypeConfig, verr.Message).WithDetail("field", verr.Field)
	}
	return Format(name), nil
}

// FormatFromFilename picks the export format from a file extension
func FormatFromFilename(filename string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "", common.Errorf(common.ErrorTypeConfig, "output file %q has no extension", filename)
	}
	return ParseFormat(ext)
}

// ContentType returns the HTTP content type of a format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Write writes results to filename in the format named by its extension
func Write(results iter.Seq[*neos.CloseApproach], filename string) (int, error) {
	format, err := FormatFromFilename(filename)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatCSV:
		return WriteCSV(results, filename)
	case FormatNDJSON:
		return WriteNDJSON(results, filename)
	default:
		return WriteJSON(results, filename)
	}
}

// Encode writes results to w in the given format
func Encode(w io.Writer, format Format, results iter.Seq[*neos.CloseApproach]) (int, error) {
	switch format {
	case FormatCSV:
		return EncodeCSV(w, results)
	case FormatNDJSON:
		return EncodeNDJSON(w, results)
	default:
		return EncodeJSON(w, results)
	}
}

// WriteCSV creates (or truncates) filename and streams results into it as CSV.
// Rows already written stay on disk if a later record fails.
func WriteCSV(results iter.Seq[*neos.CloseApproach], filename string) (int, error) {
	file, err := createFile(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count, err := EncodeCSV(file, results)
	if err != nil {
		return count, err
	}
	if err := file.Close(); err != nil {
		return count, common.WrapError(err, common.ErrorTypeIO, "close CSV export")
	}
	logWritten(FormatCSV, filename, count)
	return count, nil
}

// EncodeCSV writes the header and one row per approach, consuming results once
func EncodeCSV(w io.Writer, results iter.Seq[*neos.CloseApproach]) (int, error) {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(CSVFields); err != nil {
		return 0, common.WrapError(err, common.ErrorTypeIO, "write CSV header")
	}

	count := 0
	row := make([]string, len(CSVFields))
	for approach := range results {
		if err := requireLinked(approach, count); err != nil {
			csvWriter.Flush()
			return count, err
		}
		neo := approach.NEO
		row[0] = approach.TimeString()
		row[1] = neos.FormatFloat(approach.Distance)
		row[2] = neos.FormatFloat(approach.Velocity)
		row[3] = neo.Designation
		row[4] = neo.NameString()
		row[5] = neo.DiameterString()
		row[6] = neos.FormatBool(neo.Hazardous)
		if err := csvWriter.Write(row); err != nil {
			return count, common.WrapError(err, common.ErrorTypeIO, "write CSV row")
		}
		count++
		if count%FlushEvery == 0 {
			csvWriter.Flush()
			if err := csvWriter.Error(); err != nil {
				return count, common.WrapError(err, common.ErrorTypeIO, "flush CSV rows")
			}
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return count, common.WrapError(err, common.ErrorTypeIO, "flush CSV rows")
	}
	common.RecordsWritten.WithLabelValues(string(FormatCSV)).Add(float64(count))
	return count, nil
}

// WriteJSON builds the whole document from results, then writes it to filename in one operation.
// The file is not touched when a record is found unlinked.
func WriteJSON(results iter.Seq[*neos.CloseApproach], filename string) (int, error) {
	data, count, err := MarshalJSON(results)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil { //nolint:gosec // exports are meant to be shared
		return 0, common.WrapError(err, common.ErrorTypeIO, "write JSON export").WithDetail("path", filename)
	}
	common.RecordsWritten.WithLabelValues(string(FormatJSON)).Add(float64(count))
	logWritten(FormatJSON, filename, count)
	return count, nil
}

// EncodeJSON writes results to w as a single JSON list
func EncodeJSON(w io.Writer, results iter.Seq[*neos.CloseApproach]) (int, error) {
	data, count, err := MarshalJSON(results)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, common.WrapError(err, common.ErrorTypeIO, "write JSON export")
	}
	common.RecordsWritten.WithLabelValues(string(FormatJSON)).Add(float64(count))
	return count, nil
}

// MarshalJSON renders results as a JSON list of ApproachDocument. An empty stream gives "[]".
func MarshalJSON(results iter.Seq[*neos.CloseApproach]) ([]byte, int, error) {
	documents := make([]ApproachDocument, 0)
	for approach := range results {
		doc, err := NewApproachDocument(approach, len(documents))
		if err != nil {
			return nil, 0, err
		}
		documents = append(documents, doc)
	}

	data, err := gojson.Marshal(documents)
	if err != nil {
		return nil, 0, common.WrapError(err, common.ErrorTypeFormat, "encode JSON export")
	}
	return data, len(documents), nil
}

// NewApproachDocument shapes a linked approach for structured output.
// position is the approach's index in its stream, reported on failure.
func NewApproachDocument(approach *neos.CloseApproach, position int) (ApproachDocument, error) {
	if err := requireLinked(approach, position); err != nil {
		return ApproachDocument{}, err
	}
	when, err := common.DatetimeToStr(approach.Time)
	if err != nil {
		return ApproachDocument{}, err
	}
	neo := approach.NEO
	return ApproachDocument{
		DatetimeUTC: when,
		DistanceAU:  approach.Distance,
		VelocityKmS: approach.Velocity,
		NEO: NEODocument{
			Designation:          neo.Designation,
			Name:                 neo.Name,
			DiameterKm:           neo.Diameter,
			PotentiallyHazardous: neo.Hazardous,
		},
	}, nil
}

// WriteNDJSON creates (or truncates) filename and streams results into it, one JSON object per line
func WriteNDJSON(results iter.Seq[*neos.CloseApproach], filename string) (int, error) {
	file, err := createFile(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count, err := EncodeNDJSON(file, results)
	if err != nil {
		return count, err
	}
	if err := file.Close(); err != nil {
		return count, common.WrapError(err, common.ErrorTypeIO, "close NDJSON export")
	}
	logWritten(FormatNDJSON, filename, count)
	return count, nil
}

// EncodeNDJSON writes one ApproachDocument per line, consuming results once
func EncodeNDJSON(w io.Writer, results iter.Seq[*neos.CloseApproach]) (int, error) {
	buf := bufio.NewWriter(w)
	count := 0
	for approach := range results {
		doc, err := NewApproachDocument(approach, count)
		if err != nil {
			buf.Flush()
			return count, err
		}
		line, err := gojson.Marshal(doc)
		if err != nil {
			return count, common.WrapError(err, common.ErrorTypeFormat, "encode NDJSON row")
		}
		line = append(line, '\n')
		if _, err := buf.Write(line); err != nil {
			return count, common.WrapError(err, common.ErrorTypeIO, "write NDJSON row")
		}
		count++
		if count%FlushEvery == 0 {
			if err := buf.Flush(); err != nil {
				return count, common.WrapError(err, common.ErrorTypeIO, "flush NDJSON rows")
			}
		}
	}
	if err := buf.Flush(); err != nil {
		return count, common.WrapError(err, common.ErrorTypeIO, "flush NDJSON rows")
	}
	common.RecordsWritten.WithLabelValues(string(FormatNDJSON)).Add(float64(count))
	return count, nil
}

func createFile(filename string) (*os.File, error) {
	file, err := os.Create(filename) //nolint:gosec // G304: output path chosen by the caller
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeIO, "create export file").WithDetail("path", filename)
	}
	return file, nil
}

func requireLinked(approach *neos.CloseApproach, position int) error {
	if approach == nil {
		return common.NewError(common.ErrorTypeStructural, "nil close approach in export stream").
			WithDetail("row", position+1)
	}
	if approach.NEO == nil {
		return common.Errorf(common.ErrorTypeStructural, "close approach of %q is not linked to a NEO", approach.Designation).
			WithDetail("row", position+1).
			WithDetail("designation", approach.Designation)
	}
	return nil
}

func logWritten(format Format, filename string, count int) {
	logger.Debug("export written",
		zap.String("format", string(format)),
		zap.String("path", filename),
		zap.Int("records", count),
	)
}
