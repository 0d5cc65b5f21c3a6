package database

import (
	"database/sql/driver"
	"encoding/base64"
	"fmt"
	"time"
)

// jsonable converts a wire value into something json.Marshal renders the way
// tool clients expect: timestamps as RFC 3339, binary as a tagged base64
// envelope, numerics through their driver value. Anything else degrades to
// its string form rather than failing the row.
func jsonable(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		return map[string]any{
			"__type": "bytes_b64",
			"data":   base64.StdEncoding.EncodeToString(val),
		}
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonable(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonable(item)
		}
		return out
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return jsonable(inner)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprintf("%v", v)
}
