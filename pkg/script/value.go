package script

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindBool Kind = iota
	KindNumber
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the dynamic value model shared by the runtime, the snapshot
// codec and the host API. Numbers are always float64; whole numbers are
// rendered without a fractional part.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value  { return Value{kind: KindString, str: s} }

func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

func MapValue(entries map[string]Value) Value {
	obj := make(map[string]Value, len(entries))
	for k, v := range entries {
		obj[k] = v
	}
	return Value{kind: KindMap, obj: obj}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.obj, true
}

// Clone returns a deep copy. Arrays and maps share no storage with the
// receiver, so callers may mutate the result freely.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindMap:
		obj := make(map[string]Value, len(v.obj))
		for k, item := range v.obj {
			obj[k] = item.Clone()
		}
		return Value{kind: KindMap, obj: obj}
	default:
		return v
	}
}

// Equal reports deep structural equality. NaN equals NaN so that
// snapshot round-trips compare stable.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindNumber:
		if math.IsNaN(v.num) && math.IsNaN(other.num) {
			return true
		}
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, item := range v.obj {
			peer, ok := other.obj[k]
			if !ok || !item.Equal(peer) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Text renders the value for display in story output. Whole numbers
// drop the trailing ".0"; arrays and maps use a compact literal form.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str
	case KindArray:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.Text())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMap:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v.obj[k].Text())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FromJSON converts a value produced by encoding/json (bool, float64,
// string, []any, map[string]any) into a Value.
func FromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case string:
		return String(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i, item := range x {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = v
		}
		return Value{kind: KindMap, obj: obj}, nil
	case nil:
		return Value{}, Errorf(CodeValueUnsupported, "null is not a story value")
	default:
		return Value{}, Errorf(CodeValueUnsupported, "unsupported value of type %T", raw)
	}
}

// ToJSON converts the value into the encoding/json object model.
func (v Value) ToJSON() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		arr := make([]any, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.ToJSON()
		}
		return arr
	case KindMap:
		obj := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			obj[k] = item.ToJSON()
		}
		return obj
	default:
		return nil
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.kind, v.Text())
}
