package exports

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo-import-export/common"
	"neo-import-export/neos"
)

// linked builds a linked approach from raw feed strings
func linked(t *testing.T, neoRecord neos.NEORecord, cd, dist, vRel string) *neos.CloseApproach {
	t.Helper()
	neo, err := neos.NewNearEarthObject(neoRecord)
	require.NoError(t, err)
	approach, err := neos.NewCloseApproach(neos.ApproachRecord{
		Designation: neo.Designation, Time: cd, Distance: dist, Velocity: vRel,
	})
	require.NoError(t, err)
	require.NoError(t, approach.Link(neo))
	return approach
}

func sampleApproaches(t *testing.T) []*neos.CloseApproach {
	return []*neos.CloseApproach{
		linked(t, neos.NEORecord{Designation: "433", Name: "Eros", Diameter: "16.84", Hazardous: "N"}, "1900-Jan-01 12:00", "0.09", "5.4"),
		linked(t, neos.NEORecord{Designation: "2019 AA", Hazardous: "Y"}, "2019-Jan-01 03:15", "0.3", "21.7"),
	}
}

// onceSeq yields values and fails the test if ranged over twice
func onceSeq(t *testing.T, values []*neos.CloseApproach) iter.Seq[*neos.CloseApproach] {
	used := false
	return func(yield func(*neos.CloseApproach) bool) {
		require.False(t, used, "stream consumed twice")
		used = true
		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	count, err := WriteCSV(onceSeq(t, sampleApproaches(t)), path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "datetime_utc,distance_au,velocity_km_s,designation,name,diameter_km,potentially_hazardous", lines[0])
	assert.Equal(t, "1900-01-01 12:00:00,0.09,5.4,433,Eros,16.84,False", lines[1])
	assert.Equal(t, "2019-01-01 03:15:00,0.3,21.7,2019 AA,,,True", lines[2])
}

func TestWriteCSV_HeaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := WriteCSV(slices.Values(sampleApproaches(t)), path)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	require.NoError(t, err)
	assert.Equal(t, CSVFields, header)
	assert.Equal(t, []string{"datetime_utc", "distance_au", "velocity_km_s", "designation", "name", "diameter_km", "potentially_hazardous"}, header)
}

func TestWriteCSV_QuotesNamesWithCommas(t *testing.T) {
	var buf bytes.Buffer
	approach := linked(t, neos.NEORecord{Designation: "4179", Name: "Toutatis, the", Hazardous: "Y"}, "2004-Sep-29 13:37", "0.0104", "11.0")

	_, err := EncodeCSV(&buf, slices.Values([]*neos.CloseApproach{approach}))
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Toutatis, the", rows[1][4])
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	count, err := WriteJSON(onceSeq(t, sampleApproaches(t)), path)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &docs))
	require.Len(t, docs, 2)

	first := docs[0]
	assert.Equal(t, "1900-01-01 12:00", first["datetime_utc"])
	assert.Equal(t, 0.09, first["distance_au"])
	assert.Equal(t, 5.4, first["velocity_km_s"])
	neo := first["neo"].(map[string]interface{})
	assert.Equal(t, "433", neo["designation"])
	assert.Equal(t, "Eros", neo["name"])
	assert.Equal(t, 16.84, neo["diameter_km"])
	assert.Equal(t, false, neo["potentially_hazardous"])

	unnamed := docs[1]["neo"].(map[string]interface{})
	assert.Equal(t, "2019 AA", unnamed["designation"])
	assert.Nil(t, unnamed["name"])
	assert.Contains(t, unnamed, "diameter_km")
	assert.Nil(t, unnamed["diameter_km"])
	assert.Equal(t, true, unnamed["potentially_hazardous"])
}

func TestWriters_EmptyStream(t *testing.T) {
	dir := t.TempDir()
	empty := slices.Values([]*neos.CloseApproach(nil))

	_, err := WriteCSV(empty, filepath.Join(dir, "empty.csv"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(CSVFields, ",")+"\n", string(data))

	_, err = WriteJSON(empty, filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = WriteNDJSON(empty, filepath.Join(dir, "empty.ndjson"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "empty.ndjson"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriters_Idempotent(t *testing.T) {
	dir := t.TempDir()
	approaches := sampleApproaches(t)

	for _, name := range []string{"out.csv", "out.json", "out.ndjson"} {
		path := filepath.Join(dir, name)
		_, err := Write(slices.Values(approaches), path)
		require.NoError(t, err)
		first, err := os.ReadFile(path)
		require.NoError(t, err)

		_, err = Write(slices.Values(approaches), path)
		require.NoError(t, err)
		second, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, first, second, name)
	}
}

func TestWriters_UnlinkedRecord(t *testing.T) {
	dir := t.TempDir()
	unlinked, err := neos.NewCloseApproach(neos.ApproachRecord{Designation: "99942", Time: "2029-Apr-13 21:46", Distance: "0.000254", Velocity: "7.42"})
	require.NoError(t, err)
	stream := append(sampleApproaches(t), unlinked)

	csvPath := filepath.Join(dir, "out.csv")
	count, err := WriteCSV(slices.Values(stream), csvPath)
	require.Error(t, err)
	assert.True(t, common.IsType(err, common.ErrorTypeStructural))
	assert.Equal(t, 2, count)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimRight(string(data), "\n"), "\n"), 3, "Rows before the failure stay on disk")

	jsonPath := filepath.Join(dir, "out.json")
	_, err = WriteJSON(slices.Values(stream), jsonPath)
	assert.True(t, common.IsType(err, common.ErrorTypeStructural))
	_, statErr := os.Stat(jsonPath)
	assert.True(t, os.IsNotExist(statErr), "JSON export is not written when the document cannot be built")

	_, err = WriteNDJSON(slices.Values(stream), filepath.Join(dir, "out.ndjson"))
	assert.True(t, common.IsType(err, common.ErrorTypeStructural))
}

func TestWriters_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out")
	for _, ext := range []string{".csv", ".json", ".ndjson"} {
		_, err := Write(slices.Values(sampleApproaches(t)), path+ext)
		require.Error(t, err, ext)
		assert.True(t, common.IsType(err, common.ErrorTypeIO), ext)
	}
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	count, err := EncodeNDJSON(&buf, slices.Values(sampleApproaches(t)))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	scanner := bufio.NewScanner(&buf)
	var designations []string
	for scanner.Scan() {
		var doc ApproachDocument
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc))
		designations = append(designations, doc.NEO.Designation)
	}
	assert.Equal(t, []string{"433", "2019 AA"}, designations)
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"out.csv", FormatCSV, false},
		{"OUT.JSON", FormatJSON, false},
		{"dir/out.ndjson", FormatNDJSON, false},
		{"out.xml", "", true},
		{"out", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromFilename(tt.filename)
		if tt.wantErr {
			assert.True(t, common.IsType(err, common.ErrorTypeConfig), tt.filename)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
}
