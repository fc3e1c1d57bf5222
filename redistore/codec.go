package redistore

import (
	"strconv"
	"time"

	"github.com/weftdb/weft/schema"
	"github.com/weftdb/weft/store"
)

// Values travel as hash field strings. The declared column kind decides
// how a field reads back, so the encoding needs no type tags; a field
// that fails to parse as its declared kind comes back as the string it
// is, and the engine reports the mismatch.

func encodeScalar(v schema.Value) string {
	switch v := v.(type) {
	case schema.Int:
		return strconv.FormatInt(int64(v), 10)
	case schema.Float:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case schema.String:
		return string(v)
	case schema.Bool:
		if v {
			return "1"
		}
		return "0"
	case schema.Time:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// encodeRow renders a row for HSet. Null columns are simply not stored;
// a missing hash field reads back as null.
func encodeRow(row store.Row) map[string]string {
	out := make(map[string]string, len(row))
	for col, v := range row {
		if isNull(v) {
			continue
		}
		out[col] = encodeScalar(v)
	}
	return out
}

func decodeRow(raw map[string]string, tm *tableMeta) store.Row {
	row := make(store.Row, len(tm.kinds))
	for col, kind := range tm.kinds {
		s, ok := raw[col]
		if !ok {
			row[col] = schema.Null{}
			continue
		}
		row[col] = decodeScalar(s, kind)
	}
	return row
}

func decodeScalar(s string, kind schema.Kind) schema.Value {
	switch kind {
	case schema.KindInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return schema.Int(n)
		}
	case schema.KindFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return schema.Float(f)
		}
	case schema.KindBool:
		switch s {
		case "1":
			return schema.Bool(true)
		case "0":
			return schema.Bool(false)
		}
	case schema.KindTime:
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return schema.Time(t)
		}
	}
	return schema.String(s)
}
