package request

import (
	jsonlib "encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
)

// ToFormBody converts a JSON like map to form body map, any type is mapped to string.
//
// Slices are flattened to "key[0]", "key[1]", ... fields,
// maps are flattened to "key[subKey]" fields.
// Ordered maps are encoded as JSON.
func ToFormBody(in map[string]any) (out map[string]string) {
	out = make(map[string]string)
	for k, v := range in {
		value := reflect.ValueOf(v)
		switch {
		case v == nil:
			out[k] = ""
		case value.Kind() == reflect.Slice && value.Type().Elem().Kind() != reflect.Uint8:
			for i := range value.Len() {
				out[fmt.Sprintf("%s[%d]", k, i)] = castToString(value.Index(i).Interface())
			}
		case value.Kind() == reflect.Map && value.Type().Key().Kind() == reflect.String:
			iter := value.MapRange()
			for iter.Next() {
				out[fmt.Sprintf("%s[%s]", k, iter.Key().String())] = castToString(iter.Value().Interface())
			}
		default:
			out[k] = castToString(v)
		}
	}
	return out
}

func castToString(v any) string {
	// Ordered map
	if orderedMap, ok := v.(*orderedmap.OrderedMap); ok {
		// Standard json encoding library is used.
		// JsonIter lib returns non-compact JSON,
		// if custom OrderedMap.MarshalJSON method is used.
		if out, err := jsonlib.Marshal(orderedMap); err != nil {
			panic(fmt.Errorf(`cannot cast %T to string: %w`, v, err))
		} else {
			return string(out)
		}
	}

	// Other types
	if out, err := cast.ToStringE(v); err != nil {
		panic(fmt.Errorf(`cannot cast %T to string: %w`, v, err))
	} else {
		return out
	}
}

// sortedParams converts the map to params sorted by key, so the encoded output is stable.
func sortedParams(in map[string]string) []QueryParam {
	out := make([]QueryParam, 0, len(in))
	for k, v := range in {
		out = append(out, QueryParam{Key: k, Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}

// encodeParams encodes params in "application/x-www-form-urlencoded" format, the order is kept.
func encodeParams(params []QueryParam) string {
	var out strings.Builder
	for i, p := range params {
		if i > 0 {
			out.WriteByte('&')
		}
		out.WriteString(url.QueryEscape(p.Key))
		out.WriteByte('=')
		out.WriteString(url.QueryEscape(p.Value))
	}
	return out.String()
}
