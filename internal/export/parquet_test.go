package export

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestEncodeParquetInfersColumnTypes(t *testing.T) {
	columns := []string{"name", "marks", "ratio", "active", "notes"}
	rows := [][]any{
		{"Rahul", int32(85), 0.85, true, nil},
		{"Sneha", int64(88), int64(1), false, "top"},
	}

	data, err := EncodeParquet(columns, rows)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", file.NumRows())
	}

	kinds := map[string]parquet.Kind{}
	for _, field := range file.Schema().Fields() {
		if !field.Optional() {
			t.Fatalf("field %q is not optional", field.Name())
		}
		kinds[field.Name()] = field.Type().Kind()
	}
	want := map[string]parquet.Kind{
		"name":   parquet.ByteArray,
		"marks":  parquet.Int64,
		"ratio":  parquet.Double,
		"active": parquet.Boolean,
		"notes":  parquet.ByteArray,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Fatalf("field %q kind = %v, want %v", name, kinds[name], kind)
		}
	}

	got := readRows(t, data)
	index := leafIndexes(file.Schema())
	if got[0][index["name"]].String() != "Rahul" || got[1][index["marks"]].Int64() != 88 {
		t.Fatalf("rows = %v", got)
	}
	if !got[0][index["notes"]].IsNull() || got[1][index["notes"]].String() != "top" {
		t.Fatalf("notes = %v / %v", got[0][index["notes"]], got[1][index["notes"]])
	}
	if got[1][index["ratio"]].Double() != 1 {
		t.Fatalf("ratio = %v", got[1][index["ratio"]])
	}
}

func TestEncodeParquetHandlesDuplicateAndWideValues(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	data, err := EncodeParquet([]string{"name", "name", ""}, [][]any{{"Rahul", "Computer Science Engineering", huge}})
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	index := leafIndexes(file.Schema())
	for _, name := range []string{"name", "name_2", "column_3"} {
		if _, ok := index[name]; !ok {
			t.Fatalf("missing field %q in %v", name, index)
		}
	}
	row := readRows(t, data)[0]
	if row[index["column_3"]].String() != huge.String() {
		t.Fatalf("column_3 = %v", row[index["column_3"]])
	}
}

func TestEncodeParquetRequiresColumns(t *testing.T) {
	if _, err := EncodeParquet(nil, nil); err == nil {
		t.Fatal("expected error for empty column list")
	}
}

func TestEncodeParquetEmptyResult(t *testing.T) {
	data, err := EncodeParquet([]string{"name"}, [][]any{})
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.OpenFile() error = %v", err)
	}
	if file.NumRows() != 0 {
		t.Fatalf("NumRows() = %d", file.NumRows())
	}
}

func TestUniqueColumnNames(t *testing.T) {
	got := uniqueColumnNames([]string{"a", "a", "a_2", "a"})
	want := []string{"a", "a_2", "a_2_2", "a_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uniqueColumnNames() = %v, want %v", got, want)
		}
	}
}

func readRows(t *testing.T, data []byte) []parquet.Row {
	t.Helper()
	reader := parquet.NewReader(bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquet.Row, reader.NumRows())
	n, err := reader.ReadRows(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("ReadRows() error = %v", err)
	}
	return rows[:n]
}

func leafIndexes(schema *parquet.Schema) map[string]int {
	index := map[string]int{}
	for i, field := range schema.Fields() {
		index[field.Name()] = i
	}
	return index
}
