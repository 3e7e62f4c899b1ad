// Package ctyconv converts between plain Go values and cty values.
//
// Cell values crossing the HCL boundary are cty values while the runtime and
// its presentation layers deal in plain Go values. Numbers that are whole and
// fit in an int come back as int, every other number as float64.
package ctyconv

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ToNative converts a cty.Value to a Go value made of nil, string, bool, int,
// float64, []any and map[string]any.
func ToNative(val cty.Value) (any, error) {
	if !val.IsKnown() {
		return nil, fmt.Errorf("cannot convert an unknown value")
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			return number(val.AsBigFloat()), nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			native, err := ToNative(v)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			out[k.AsString()] = native
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			native, err := ToNative(v)
			if err != nil {
				return nil, fmt.Errorf("in element %d: %w", len(out), err)
			}
			out = append(out, native)
		}
		return out, nil
	}
	if ty.IsCapsuleType() {
		return val.EncapsulatedValue(), nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

func number(f *big.Float) any {
	if f.IsInt() {
		if i, acc := f.Int64(); acc == big.Exact && int64(int(i)) == i {
			return int(i)
		}
	}
	out, _ := f.Float64()
	return out
}

// FromNative converts a Go value to a cty.Value. Maps with string keys become
// objects and slices become tuples, so mixed element types are kept as-is.
// Anything else goes through gocty's implied type.
func FromNative(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return t, nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case uint:
		return cty.NumberUIntVal(uint64(t)), nil
	case uint64:
		return cty.NumberUIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case float32:
		return cty.NumberFloatVal(float64(t)), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, elem := range t {
			cv, err := FromNative(elem)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in attribute '%s': %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, elem := range t {
			cv, err := FromNative(elem)
			if err != nil {
				return cty.NilVal, fmt.Errorf("in element %d: %w", i, err)
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	case []string:
		elems := make([]any, len(t))
		for i, s := range t {
			elems[i] = s
		}
		return FromNative(elems)
	case map[string]string:
		attrs := make(map[string]any, len(t))
		for k, s := range t {
			attrs[k] = s
		}
		return FromNative(attrs)
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot convert %T to a cty value: %w", v, err)
	}
	return gocty.ToCtyValue(v, ty)
}

// MarshalJSON renders a Go or cty value as JSON through cty's own encoder, so
// numbers keep their exact decimal form.
func MarshalJSON(v any) ([]byte, error) {
	cv, err := FromNative(v)
	if err != nil {
		return nil, err
	}
	// Untyped nulls would be encoded with a type wrapper.
	cv, err = cty.Transform(cv, func(_ cty.Path, v cty.Value) (cty.Value, error) {
		if v.IsNull() && v.Type() == cty.DynamicPseudoType {
			return cty.NullVal(cty.String), nil
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return ctyjson.SimpleJSONValue{Value: cv}.MarshalJSON()
}

// Format renders a value as a short human readable string.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	case cty.Value:
		native, err := ToNative(t)
		if err != nil {
			return t.GoString()
		}
		return Format(native)
	}
	if b, err := MarshalJSON(v); err == nil {
		return string(b)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func || rv.Kind() == reflect.Chan {
		return fmt.Sprintf("<%s>", rv.Type())
	}
	return fmt.Sprintf("%v", v)
}
