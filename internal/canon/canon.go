// Package canon produces deterministic serializations and fingerprints of
// arbitrary nested values. Every change-detection hash in index-pump (schema
// hash, table hash, row hash, document id) is built on Canonicalize, so its
// output format must never change between releases.
package canon

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the fixed ISO-8601 UTC layout used for every date-like value,
// both inside canonical serializations and in persisted records.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical UTC layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Canonicalize returns a deterministic, JSON-shaped serialization of v.
//
// Object keys are sorted lexicographically at every nesting level, so two maps
// with equal contents canonicalize identically regardless of insertion order.
// Array element order is preserved. Date-like values become fixed ISO-8601 UTC
// strings, arbitrary-precision integers keep their full decimal form, and both
// nil and missing values serialize to null.
func Canonicalize(v interface{}) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v interface{}) {
	if v == nil {
		b.WriteString("null")
		return
	}

	switch x := v.(type) {
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case string:
		writeString(b, x)
	case []byte:
		writeString(b, string(x))
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case json.Number:
		// Already a decimal literal; emitting it verbatim preserves precision.
		b.WriteString(x.String())
	case *big.Int:
		if x == nil {
			b.WriteString("null")
			return
		}
		b.WriteString(x.String())
	case big.Int:
		b.WriteString(x.String())
	case time.Time:
		writeString(b, FormatTime(x))
	case *time.Time:
		if x == nil {
			b.WriteString("null")
			return
		}
		writeString(b, FormatTime(*x))
	case map[string]interface{}:
		writeMap(b, x)
	case []interface{}:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, e)
		}
		b.WriteByte(']')
	default:
		writeReflected(b, v)
	}
}

func writeMap(b *strings.Builder, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, k)
		b.WriteByte(':')
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}

// writeReflected handles values outside the common set: typed slices, typed
// maps with string-ish keys, pointers, and anything else via fmt. Map keys are
// stringified and sorted so the result stays order-independent.
func writeReflected(b *strings.Builder, v interface{}) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("null")
			return
		}
		writeValue(b, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		b.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, rv.Index(i).Interface())
		}
		b.WriteByte(']')
	case reflect.Map:
		entries := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		writeMap(b, entries)
	default:
		// Last resort: stable string form. Structs and exotic scalars land
		// here; rows scanned from database/sql never do.
		writeString(b, fmt.Sprint(v))
	}
}

// writeString emits s as a JSON string literal. encoding/json escaping is
// deterministic, which is all that matters here.
func writeString(b *strings.Builder, s string) {
	enc, err := json.Marshal(s)
	if err != nil {
		// Marshal of a string cannot fail; keep a fallback anyway.
		b.WriteString(strconv.Quote(s))
		return
	}
	b.Write(enc)
}
