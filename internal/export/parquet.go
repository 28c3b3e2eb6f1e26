package export

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/nl2sqlchat/nl2sqlchat/internal/nl2sql"
)

const ContentType = "application/vnd.apache.parquet"

type columnKind int

const (
	kindUnknown columnKind = iota
	kindInt64
	kindDouble
	kindBoolean
	kindString
)

// EncodeParquet writes a result table into an in-memory parquet file. Every
// column is optional; its physical type is inferred from the values.
func EncodeParquet(columns []string, rows [][]any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := WriteParquet(buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteParquet(w io.Writer, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("result has no columns")
	}

	names := uniqueColumnNames(columns)
	kinds := make([]columnKind, len(names))
	group := parquet.Group{}
	for i, name := range names {
		kinds[i] = inferColumnKind(rows, i)
		group[name] = parquet.Optional(parquetNode(kinds[i]))
	}
	schema := parquet.NewSchema("result", group)

	// Group fields are ordered by name, so leaf indexes differ from the
	// result's column order.
	leafIndex := make(map[string]int, len(names))
	for i, field := range schema.Fields() {
		leafIndex[field.Name()] = i
	}

	out := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		record := make(parquet.Row, len(names))
		for i, name := range names {
			var value any
			if i < len(row) {
				value = row[i]
			}
			idx := leafIndex[name]
			pv, ok := parquetValue(kinds[i], value)
			if !ok {
				record[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			record[idx] = pv.Level(0, 1, idx)
		}
		out = append(out, record)
	}

	writer := parquet.NewWriter(w, schema)
	if _, err := writer.WriteRows(out); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetNode(kind columnKind) parquet.Node {
	switch kind {
	case kindInt64:
		return parquet.Int(64)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindBoolean:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func inferColumnKind(rows [][]any, column int) columnKind {
	kind := kindUnknown
	for _, row := range rows {
		if column >= len(row) || row[column] == nil {
			continue
		}
		kind = mergeKinds(kind, valueKind(row[column]))
		if kind == kindString {
			return kind
		}
	}
	if kind == kindUnknown {
		return kindString
	}
	return kind
}

func mergeKinds(current, next columnKind) columnKind {
	switch {
	case current == kindUnknown || current == next:
		return next
	case (current == kindInt64 && next == kindDouble) || (current == kindDouble && next == kindInt64):
		return kindDouble
	default:
		return kindString
	}
}

func valueKind(value any) columnKind {
	switch typed := value.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt64
	case uint, uint64:
		return kindDouble
	case *big.Int:
		if typed.IsInt64() {
			return kindInt64
		}
		return kindString
	case float32, float64:
		return kindDouble
	case bool:
		return kindBoolean
	default:
		return kindString
	}
}

func parquetValue(kind columnKind, value any) (parquet.Value, bool) {
	if value == nil {
		return parquet.Value{}, false
	}
	switch kind {
	case kindInt64:
		n, ok := toInt64(value)
		return parquet.Int64Value(n), ok
	case kindDouble:
		f, ok := toFloat64(value)
		return parquet.DoubleValue(f), ok
	case kindBoolean:
		b, ok := value.(bool)
		return parquet.BooleanValue(b), ok
	default:
		return parquet.ByteArrayValue([]byte(nl2sql.FormatValue(value))), true
	}
}

func toInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case *big.Int:
		return typed.Int64(), typed.IsInt64()
	default:
		return 0, false
	}
}

func toFloat64(value any) (float64, bool) {
	switch typed := value.(type) {
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case uint:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	default:
		n, ok := toInt64(value)
		return float64(n), ok
	}
}

// uniqueColumnNames makes result columns usable as parquet field names:
// joins can return the same name twice and expressions can be unnamed.
func uniqueColumnNames(columns []string) []string {
	taken := make(map[string]bool, len(columns))
	names := make([]string, len(columns))
	for i, column := range columns {
		base := column
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
