package util

import "reflect"

// DeepCopy creates a deep copy of an attribute value. Values flowing through
// the interpreter are scalars, strings, []interface{}, []string and
// map[string]interface{} as produced by the YAML loader and by modules; a
// reflection fallback covers anything else.
func DeepCopy(src interface{}) interface{} {
	if src == nil {
		return nil
	}

	switch v := src.(type) {
	case string, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, float64, float32, bool:
		return v

	case []string:
		cpy := make([]string, len(v))
		copy(cpy, v)
		return cpy

	case []interface{}:
		cpy := make([]interface{}, len(v))
		for i, value := range v {
			cpy[i] = DeepCopy(value)
		}
		return cpy

	case map[string]interface{}:
		cpy := make(map[string]interface{}, len(v))
		for key, value := range v {
			cpy[key] = DeepCopy(value)
		}
		return cpy

	default:
		return deepCopyReflection(reflect.ValueOf(src))
	}
}

// deepCopyReflection is the fallback for uncommon types. It does not attempt
// cycle detection; attribute values are trees by construction.
func deepCopyReflection(original reflect.Value) interface{} {
	if !original.IsValid() {
		return nil
	}

	switch original.Kind() {
	case reflect.Ptr:
		if original.IsNil() {
			return nil
		}
		newPtr := reflect.New(original.Type().Elem())
		copied := deepCopyReflection(original.Elem())
		if copied != nil {
			newPtr.Elem().Set(reflect.ValueOf(copied))
		}
		return newPtr.Interface()

	case reflect.Interface:
		if original.IsNil() {
			return nil
		}
		return DeepCopy(original.Elem().Interface())

	case reflect.Slice:
		if original.IsNil() {
			return nil
		}
		cpy := reflect.MakeSlice(original.Type(), original.Len(), original.Cap())
		for i := 0; i < original.Len(); i++ {
			cpy.Index(i).Set(reflect.ValueOf(DeepCopy(original.Index(i).Interface())))
		}
		return cpy.Interface()

	case reflect.Map:
		if original.IsNil() {
			return nil
		}
		cpy := reflect.MakeMap(original.Type())
		for _, key := range original.MapKeys() {
			copied := DeepCopy(original.MapIndex(key).Interface())
			cpy.SetMapIndex(key, reflect.ValueOf(copied))
		}
		return cpy.Interface()

	default:
		return original.Interface()
	}
}
