// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/featurebasedb/sqlgateway/errors"
)

const (
	ErrInvalidValue errors.Code = "InvalidValue"
)

func errInvalidRowKind(s string) error {
	return errors.Newf(ErrInvalidValue, "invalid row kind '%s'", s)
}

// Base type names.
const (
	TypeBoolean   = "BOOLEAN"
	TypeInt       = "INT"
	TypeBigInt    = "BIGINT"
	TypeDouble    = "DOUBLE"
	TypeString    = "STRING"
	TypeTimestamp = "TIMESTAMP"
	TypeDate      = "DATE"
	TypeNull      = "NULL"
)

// BaseType strips length/precision arguments and NOT NULL from a declared
// type and maps synonyms to one name: "VARCHAR(20)" becomes STRING,
// "TIMESTAMP(3)" becomes TIMESTAMP.
func BaseType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	t = strings.TrimSuffix(t, " NOT NULL")
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	case "TINYINT", "SMALLINT", "INT", "INTEGER":
		return TypeInt
	case "BIGINT":
		return TypeBigInt
	case "FLOAT", "DOUBLE", "DECIMAL", "REAL", "NUMERIC":
		return TypeDouble
	case "CHAR", "VARCHAR", "STRING", "TEXT":
		return TypeString
	case "TIMESTAMP", "TIMESTAMP_LTZ":
		return TypeTimestamp
	case "DATE":
		return TypeDate
	}
	return t
}

// TypeOf returns the declared type name of a runtime value.
func TypeOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case int64:
		return TypeBigInt
	case float64:
		return TypeDouble
	case time.Time:
		return TypeTimestamp
	}
	return TypeString
}

func typeTag(v interface{}) string {
	switch v.(type) {
	case nil:
		return "n"
	case bool:
		return "b"
	case int64:
		return "i"
	case float64:
		return "f"
	}
	return "s"
}

// FormatValue renders a value the way rows print it.
func FormatValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "null"
	case string:
		return vv
	case float64:
		if vv == math.Trunc(vv) && math.Abs(vv) < 1e15 {
			return strconv.FormatFloat(vv, 'f', 1, 64)
		}
		return strconv.FormatFloat(vv, 'g', -1, 64)
	case time.Time:
		return vv.Format("2006-01-02T15:04:05.999999999")
	case []byte:
		return string(vv)
	}
	return fmt.Sprint(v)
}

// Normalize converts Go values coming from sources (ints of any width, byte
// slices, float32) to the gateway's runtime types: nil, bool, int64, float64,
// string and time.Time.
func Normalize(v interface{}) interface{} {
	switch vv := v.(type) {
	case int:
		return int64(vv)
	case int8:
		return int64(vv)
	case int16:
		return int64(vv)
	case int32:
		return int64(vv)
	case uint:
		return int64(vv)
	case uint8:
		return int64(vv)
	case uint16:
		return int64(vv)
	case uint32:
		return int64(vv)
	case uint64:
		return int64(vv)
	case float32:
		return float64(vv)
	case []byte:
		return string(vv)
	}
	return v
}

// Coerce converts v to the runtime type of the declared column type. Strings
// are parsed.
func Coerce(v interface{}, declared string) (interface{}, error) {
	v = Normalize(v)
	if v == nil {
		return nil, nil
	}
	switch BaseType(declared) {
	case TypeBoolean:
		switch vv := v.(type) {
		case bool:
			return vv, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(vv))
			if err != nil {
				return nil, errors.Newf(ErrInvalidValue, "cannot parse '%s' as %s", vv, declared)
			}
			return b, nil
		}
	case TypeInt, TypeBigInt:
		switch vv := v.(type) {
		case int64:
			return vv, nil
		case float64:
			return int64(vv), nil
		case string:
			s := strings.TrimSpace(vv)
			if s == "" {
				return nil, nil
			}
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errors.Newf(ErrInvalidValue, "cannot parse '%s' as %s", vv, declared)
			}
			return i, nil
		}
	case TypeDouble:
		switch vv := v.(type) {
		case int64:
			return float64(vv), nil
		case float64:
			return vv, nil
		case string:
			s := strings.TrimSpace(vv)
			if s == "" {
				return nil, nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errors.Newf(ErrInvalidValue, "cannot parse '%s' as %s", vv, declared)
			}
			return f, nil
		}
	case TypeString, TypeTimestamp, TypeDate:
		return FormatValue(v), nil
	default:
		return v, nil
	}
	return nil, errors.Newf(ErrInvalidValue, "cannot convert %s value '%s' to %s", TypeOf(v), FormatValue(v), declared)
}

// Compare orders two values. Numbers compare numerically across int64 and
// float64; nil sorts first. Values of unrelated types compare by their
// formatted text.
func Compare(a, b interface{}) int {
	a, b = Normalize(a), Normalize(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			if ai, ok := a.(int64); ok {
				if bi, ok := b.(int64); ok {
					return compareInt(ai, bi)
				}
			}
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func asFloat(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case int64:
		return float64(vv), true
	case float64:
		return vv, true
	}
	return 0, false
}

// AsInt64 returns v as an integer if it is numeric.
func AsInt64(v interface{}) (int64, bool) {
	switch vv := Normalize(v).(type) {
	case int64:
		return vv, true
	case float64:
		return int64(vv), true
	}
	return 0, false
}

// AsFloat64 returns v as a float if it is numeric.
func AsFloat64(v interface{}) (float64, bool) {
	return asFloat(Normalize(v))
}
