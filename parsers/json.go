package parsers

import (
	"fmt"
	"io"
	"os"
	"strconv"

	gojson "github.com/goccy/go-json"

	"neo-import-export/common"
	"neo-import-export/neos"
)

// Close-approach feed field names
const (
	FieldDesignation = "des"
	FieldTime        = "cd"
	FieldDistance    = "dist"
	FieldVelocity    = "v_rel"
)

// cadDocument is the close-approach feed: a field list plus rows aligned to it
type cadDocument struct {
	Fields []string        `json:"fields"`
	Data   [][]interface{} `json:"data"`
}

// LoadApproaches reads the close-approach JSON feed at path
func LoadApproaches(path string) ([]*neos.CloseApproach, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.WrapError(err, common.ErrorTypeIO, "open close-approach feed").
			WithDetail("path", path)
	}
	defer file.Close()

	return ParseApproaches(file)
}

// ParseApproaches decodes a close-approach document and returns one unlinked
// approach per entry of "data", in order.
func ParseApproaches(reader io.Reader) ([]*neos.CloseApproach, error) {
	decoder := gojson.NewDecoder(reader)
	decoder.UseNumber() // Keep numeric cells as their literal text

	var doc cadDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, common.WrapError(err, common.ErrorTypeFormat, "decode close-approach feed")
	}
	if doc.Fields == nil {
		return nil, common.NewError(common.ErrorTypeFormat, `close-approach feed has no "fields"`).
			WithDetail("field", "fields")
	}
	if doc.Data == nil {
		return nil, common.NewError(common.ErrorTypeFormat, `close-approach feed has no "data"`).
			WithDetail("field", "data")
	}

	positions, err := NewHeader(doc.Fields).Resolve(FieldDesignation, FieldTime, FieldDistance, FieldVelocity)
	if err != nil {
		return nil, err
	}
	required := maxPosition(positions) + 1

	result := make([]*neos.CloseApproach, 0, len(doc.Data))
	for i, row := range doc.Data {
		rowNum := i + 1
		if len(row) < required {
			return nil, common.Errorf(common.ErrorTypeFormat, "close-approach row has %d fields, need at least %d", len(row), required).
				WithDetail("row", rowNum)
		}

		cells := make([]string, len(positions))
		for j, pos := range positions {
			cell, err := cellString(row[pos])
			if err != nil {
				return nil, withRow(err, rowNum)
			}
			cells[j] = cell
		}

		approach, err := neos.NewCloseApproach(neos.ApproachRecord{
			Designation: cells[0],
			Time:        cells[1],
			Distance:    cells[2],
			Velocity:    cells[3],
		})
		if err != nil {
			return nil, withRow(err, rowNum)
		}
		result = append(result, approach)
	}

	return result, nil
}

// cellString renders a decoded cell as the raw string the record constructors expect
func cellString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer: // json.Number under UseNumber
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", common.Errorf(common.ErrorTypeFormat, "unsupported cell value of type %T", v)
	}
}
