package parsers

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"neo-import-export/common"
	"neo-import-export/neos"
)

// NEO feed column names
const (
	ColumnDesignation = "pdes"
	ColumnName        = "name"
	ColumnDiameter    = "diameter"
	ColumnHazardous   = "pha"
)

// Header maps column names to their positions in a header row
type Header map[string]int

// NewHeader indexes a header row. The first occurrence of a name wins.
func NewHeader(names []string) Header {
	header := make(Header, len(names))
	for i, name := range names {
		if _, seen := header[name]; !seen {
			header[name] = i
		}
	}
	return header
}

// Resolve returns the positions of the named columns in the order given
func (h Header) Resolve(names ...string) ([]int, error) {
	positions := make([]int, len(names))
	for i, name := range names {
		pos, ok := h[name]
		if !ok {
			return nil, common.Errorf(common.ErrorTypeFormat, "header is missing column %q", name).
				WithDetail("field", name)
		}
		positions[i] = pos
	}
	return positions, nil
}

// LoadNEOs reads the NEO CSV feed at path
func LoadNEOs(path string) ([]*neos.NearEarthObject, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeIO, "open NEO feed").
			WithDetail("path", path)
	}
	defer file.Close()

	return ParseNEOs(file)
}

// ParseNEOs reads a header-described CSV feed and returns one NEO per data row, in row order.
// Columns are resolved by name so their order does not matter; extra columns are ignored.
func ParseNEOs(reader io.Reader) ([]*neos.NearEarthObject, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1 // Row length is checked against the resolved columns instead

	headers, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, common.NewError(common.ErrorTypeFormat, "NEO feed has no header row")
		}
		return nil, common.WrapError(err, common.ErrorTypeFormat, "read NEO header")
	}

	positions, err := NewHeader(headers).Resolve(ColumnDesignation, ColumnName, ColumnDiameter, ColumnHazardous)
	if err != nil {
		return nil, err
	}
	required := maxPosition(positions) + 1

	var result []*neos.NearEarthObject
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, common.WrapError(err, common.ErrorTypeFormat, "read NEO row")
		}
		line, _ := csvReader.FieldPos(0)
		if len(row) < required {
			return nil, common.Errorf(common.ErrorTypeFormat, "NEO row has %d fields, need at least %d", len(row), required).
				WithDetail("row", line)
		}

		neo, err := neos.NewNearEarthObject(neos.NEORecord{
			Designation: row[positions[0]],
			Name:        row[positions[1]],
			Diameter:    row[positions[2]],
			Hazardous:   row[positions[3]],
		})
		if err != nil {
			return nil, withRow(err, line)
		}
		result = append(result, neo)
	}

	return result, nil
}

func maxPosition(positions []int) int {
	max := 0
	for _, p := range positions {
		if p > max {
			max = p
		}
	}
	return max
}

// withRow records the feed row an error came from
func withRow(err error, row int) error {
	var e *common.Error
	if errors.As(err, &e) {
		e.WithDetail("row", row)
		return e
	}
	return common.WrapError(err, common.ErrorTypeFormat, "invalid row").WithDetail("row", row)
}
