package events

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// serialize flattens an attribute value into the scalar strings sent in a
// DataPair. Nil values and empty collections yield nothing.
func serialize(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []byte:
		if x == nil {
			return nil
		}
		return []string{model.BytesText(x)}
	case bool:
		return []string{strconv.FormatBool(x)}
	case int:
		return []string{strconv.Itoa(x)}
	case int32:
		return []string{strconv.FormatInt(int64(x), 10)}
	case int64:
		return []string{strconv.FormatInt(x, 10)}
	case float32:
		return []string{strconv.FormatFloat(float64(x), 'f', -1, 32)}
	case float64:
		return []string{strconv.FormatFloat(x, 'f', -1, 64)}
	case time.Time:
		return []string{x.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if x == nil {
			return nil
		}
		return []string{x.UTC().Format(time.RFC3339Nano)}
	case []string:
		return append([]string(nil), x...)
	case []any:
		var out []string
		for _, el := range x {
			out = append(out, serialize(el)...)
		}
		return out
	case fmt.Stringer:
		return []string{x.String()}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return serialize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		var out []string
		for i := range rv.Len() {
			out = append(out, serialize(rv.Index(i).Interface())...)
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return []string{strconv.FormatInt(rv.Int(), 10)}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return []string{strconv.FormatUint(rv.Uint(), 10)}
	case reflect.String:
		return []string{rv.String()}
	case reflect.Bool:
		return []string{strconv.FormatBool(rv.Bool())}
	case reflect.Float32, reflect.Float64:
		return []string{strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits())}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return []string{fmt.Sprint(v)}
	}
	return []string{string(data)}
}
