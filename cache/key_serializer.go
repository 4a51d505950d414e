package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// canonicalSerializer renders key segments deterministically: map keys are
// sorted, struct fields appear in declaration order and zero-valued fields are
// omitted, so two equal filters always produce the same string. Strings inside
// slices, maps and structs are always quoted; top-level segments are quoted
// only when they contain ':' or '"'. Distinct params never share a rendering.
type canonicalSerializer struct{}

// NewDefaultKeySerializer creates the serializer Key uses for its params.
func NewDefaultKeySerializer() KeySerializer {
	return canonicalSerializer{}
}

// SerializeKey joins namespace and the serialized args with KeySeparator.
func (s canonicalSerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func (s canonicalSerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case string:
		return quoteSegment(tv)
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return tv.String()
	case encoding.TextMarshaler:
		if b, err := tv.MarshalText(); err == nil {
			return quoteSegment(string(b))
		}
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	case reflect.String:
		return quoteSegment(rv.String())
	}

	return s.jsonFallback(v)
}

// serializeElement renders a value nested in a slice, map or struct.
func (s canonicalSerializer) serializeElement(v any) string {
	if v == nil {
		return "nil"
	}
	if tm, ok := v.(encoding.TextMarshaler); ok {
		if _, isTime := v.(time.Time); !isTime {
			if b, err := tm.MarshalText(); err == nil {
				return strconv.Quote(string(b))
			}
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeElement(rv.Elem().Interface())
	}
	return s.serializeValue(v)
}

func quoteSegment(v string) string {
	if strings.ContainsAny(v, `:"`) {
		return strconv.Quote(v)
	}
	return v
}

func (s canonicalSerializer) serializeList(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.serializeElement(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

func (s canonicalSerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeElement(iter.Key().Interface())+"="+s.serializeElement(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s canonicalSerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fv := rv.Field(i)
		if fv.IsZero() {
			continue
		}

		parts = append(parts, field.Name+":"+s.serializeElement(fv.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s canonicalSerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
