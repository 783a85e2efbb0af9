package ded

import (
	"fmt"
	"strconv"

	"github.com/tuplespace/ded/internal/xhash"
)

// ColumnType is a per-column type witness: a small vtable of equality,
// hashing, zero-value, parsing and formatting behavior chosen once at
// predicate registration. It replaces the reflection-driven dynamic typing
// that a naive port of the source would otherwise need for constant
// folding and row equality (design notes §9).
type ColumnType interface {
	Name() string
	Equal(a, b any) bool
	Hash(v any) uint64
	Zero() any
	Less(a, b any) bool
	Parse(s string) (any, error)
	Format(v any) string
}

// Summable is implemented by column types whose values can be folded with
// Sum aggregation (§4.6 Aggregate); Max/Min only need ColumnType.Less.
type Summable interface {
	ColumnType
	Add(a, b any) any
}

type intType struct{}

func (intType) Name() string { return "int" }
func (intType) Equal(a, b any) bool { return a.(int) == b.(int) }
func (t intType) Hash(v any) uint64 { return xhash.Int64(int64(v.(int))) }
func (intType) Zero() any { return 0 }
func (intType) Less(a, b any) bool { return a.(int) < b.(int) }
func (intType) Parse(s string) (any, error) { return strconv.Atoi(s) }
func (intType) Format(v any) string { return strconv.Itoa(v.(int)) }
func (intType) Add(a, b any) any { return a.(int) + b.(int) }

type floatType struct{}

func (floatType) Name() string { return "float" }
func (floatType) Equal(a, b any) bool { return a.(float64) == b.(float64) }
func (t floatType) Hash(v any) uint64 { return xhash.Float64(v.(float64)) }
func (floatType) Zero() any { return 0.0 }
func (floatType) Less(a, b any) bool { return a.(float64) < b.(float64) }
func (floatType) Parse(s string) (any, error) { return strconv.ParseFloat(s, 64) }
func (floatType) Format(v any) string { return strconv.FormatFloat(v.(float64), 'g', -1, 64) }
func (floatType) Add(a, b any) any { return a.(float64) + b.(float64) }

type stringType struct{}

func (stringType) Name() string { return "string" }
func (stringType) Equal(a, b any) bool { return a.(string) == b.(string) }
func (t stringType) Hash(v any) uint64 { return xhash.String(v.(string)) }
func (stringType) Zero() any { return "" }
func (stringType) Less(a, b any) bool { return a.(string) < b.(string) }
func (stringType) Parse(s string) (any, error) { return s, nil }
func (stringType) Format(v any) string { return v.(string) }

type boolType struct{}

func (boolType) Name() string { return "bool" }
func (boolType) Equal(a, b any) bool { return a.(bool) == b.(bool) }
func (t boolType) Hash(v any) uint64 {
	if v.(bool) {
		return 1
	}
	return 0
}
func (boolType) Zero() any { return false }
func (boolType) Less(a, b any) bool { return !a.(bool) && b.(bool) }
func (boolType) Parse(s string) (any, error) { return strconv.ParseBool(s) }
func (boolType) Format(v any) string { return strconv.FormatBool(v.(bool)) }

// Built-in column types. Hosts needing other types (e.g. a row-typed
// "Any" column, or an enum) can satisfy ColumnType directly.
var (
	Int    ColumnType = intType{}
	Float  ColumnType = floatType{}
	String ColumnType = stringType{}
	Bool   ColumnType = boolType{}
)

// anyType is used internally for columns whose role is purely a carrier
// (e.g. an aggregate's "collection" argument, or Ignore-only columns used
// by table operators) and that never participate in Constant/Read
// comparisons that require Equal/Less on arbitrary payloads.
type anyType struct{}

func (anyType) Name() string { return "any" }
func (anyType) Equal(a, b any) bool { return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) }
func (anyType) Hash(v any) uint64 { return xhash.String(fmt.Sprintf("%v", v)) }
func (anyType) Zero() any { return nil }
func (anyType) Less(a, b any) bool { return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b) }
func (anyType) Parse(s string) (any, error) { return s, nil }
func (anyType) Format(v any) string { return fmt.Sprintf("%v", v) }

var Any ColumnType = anyType{}
