package request

import (
	"fmt"
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// json - replacement of the standard encoding/json library, it is faster for larger responses.
var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// jsonMarshalerType values encode themselves, their internals are not walked.
var jsonMarshalerType = reflect.TypeFor[interface{ MarshalJSON() ([]byte, error) }]() //nolint:gochecknoglobals

// cycleKey identifies a pointer, map or slice on the current path, the same way encoding/json does.
type cycleKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// marshalJSON serializes the value, a self-referencing value is rejected before encoding.
// The jsoniter encoder has no cycle detection, it would recurse until the stack overflows.
func marshalJSON(value any) ([]byte, error) {
	if err := checkCycles(reflect.ValueOf(value), make(map[cycleKey]struct{})); err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

func checkCycles(v reflect.Value, seen map[cycleKey]struct{}) error {
	if !v.IsValid() {
		return nil
	}

	if v.Type().Implements(jsonMarshalerType) && !(v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if v.IsNil() {
			return nil
		}
		key := cycleKey{ptr: v.Pointer(), typ: v.Type()}
		if _, found := seen[key]; found {
			return fmt.Errorf("json: unsupported value: encountered a cycle via %s", v.Type())
		}
		seen[key] = struct{}{}
		defer delete(seen, key)

		if v.Kind() == reflect.Pointer {
			return checkCycles(v.Elem(), seen)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := checkCycles(iter.Value(), seen); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if v.IsNil() || v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		key := cycleKey{ptr: v.Pointer(), len: v.Len(), typ: v.Type()}
		if _, found := seen[key]; found {
			return fmt.Errorf("json: unsupported value: encountered a cycle via %s", v.Type())
		}
		seen[key] = struct{}{}
		defer delete(seen, key)

		for i := range v.Len() {
			if err := checkCycles(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := range v.Len() {
			if err := checkCycles(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Interface:
		return checkCycles(v.Elem(), seen)
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			// Only fields visible to the encoder
			f := t.Field(i)
			if !f.IsExported() && !f.Anonymous {
				continue
			}
			if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name == "-" {
				continue
			}
			if err := checkCycles(v.Field(i), seen); err != nil {
				return err
			}
		}
	default:
	}
	return nil
}
