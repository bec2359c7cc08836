package tabular

import (
	"strconv"
	"time"
)

// Kind tags a cell value. Columns vary per file, so rows are dynamic: an
// ordered set of columns with one tagged value per cell.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
)

type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
}

func Null() Value                 { return Value{Kind: KindNull} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func IntValue(v int64) Value      { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func TimeValue(v time.Time) Value { return Value{Kind: KindTime, Time: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Native returns the driver-friendly representation for SQL binding.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindTime:
		return v.Time
	default:
		return v.Str
	}
}

// Text renders the value the way it would appear in a CSV cell. Null renders
// as the empty string.
func (v Value) Text() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return v.Str
	}
}
