package paramutil

import (
	"fmt"
	"reflect"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
)

// GetRequiredString retrieves a required string parameter from the params map.
// It returns the string value and a nil error if the key exists and the value
// is a string. Otherwise, it returns an empty string and a ValidationError.
func GetRequiredString(params map[string]interface{}, key string) (string, error) {
	value, exists := params[key]
	if !exists {
		return "", stranderrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}

	return strValue, nil
}

// GetOptionalString retrieves an optional string parameter. Returns the value
// and true if found, empty string and false if not found, or an error if the
// key exists but has the wrong type.
func GetOptionalString(params map[string]interface{}, key string) (string, bool, error) {
	value, exists := params[key]
	if !exists {
		return "", false, nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}

	return strValue, true, nil
}

// GetOptionalStringSlice retrieves an optional parameter that should be a
// slice of strings, converting from []interface{} when the YAML decoder
// produced that.
func GetOptionalStringSlice(params map[string]interface{}, key string) ([]string, bool, error) {
	value, exists := params[key]
	if !exists {
		return nil, false, nil
	}

	if stringSlice, isStringSlice := value.([]string); isStringSlice {
		return stringSlice, true, nil
	}

	sliceValue, ok := value.([]interface{})
	if !ok {
		return nil, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a list/slice, got %T", key, value), nil)
	}

	result := make([]string, 0, len(sliceValue))
	for i, item := range sliceValue {
		strItem, ok := item.(string)
		if !ok {
			return nil, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a list/slice of strings, found non-string element at index %d (%T)", key, i, item), nil)
		}
		result = append(result, strItem)
	}

	return result, true, nil
}

// GetOptionalMap retrieves an optional parameter that should be a
// map[string]interface{}, converting from map[interface{}]interface{} when
// necessary (common from YAML).
func GetOptionalMap(params map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	value, exists := params[key]
	if !exists {
		return nil, false, nil
	}

	mapValue, ok := value.(map[string]interface{})
	if ok {
		return mapValue, true, nil
	}

	if genericMap, isGenericMap := value.(map[interface{}]interface{}); isGenericMap {
		convertedMap := make(map[string]interface{}, len(genericMap))
		for k, v := range genericMap {
			strKey, ok := k.(string)
			if !ok {
				return nil, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a map with string keys, found key of type %T", key, k), nil)
			}
			convertedMap[strKey] = v
		}
		return convertedMap, true, nil
	}

	return nil, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a map, got %T", key, value), nil)
}

// GetOptionalInt retrieves an optional integer parameter, attempting coercion
// from compatible numeric types. Whole-number floats convert; anything else
// is a ValidationError.
func GetOptionalInt(params map[string]interface{}, key string) (int, bool, error) {
	value, exists := params[key]
	if !exists {
		return 0, false, nil
	}

	switch v := value.(type) {
	case int:
		return v, true, nil
	case int8:
		return int(v), true, nil
	case int16:
		return int(v), true, nil
	case int32:
		return int(v), true, nil
	case int64:
		intValue := int(v)
		// int may be 32 bits.
		if int64(intValue) != v {
			return 0, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' value %v overflows standard int type", key, v), nil)
		}
		return intValue, true, nil
	case float32:
		if v == float32(int(v)) {
			return int(v), true, nil
		}
		return 0, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	case float64:
		if v == float64(int(v)) {
			return int(v), true, nil
		}
		return 0, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	default:
		return 0, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be an integer or whole number, got %T", key, value), nil)
	}
}

// GetOptionalBool retrieves an optional boolean parameter.
func GetOptionalBool(params map[string]interface{}, key string) (bool, bool, error) {
	value, exists := params[key]
	if !exists {
		return false, false, nil
	}

	boolValue, ok := value.(bool)
	if !ok {
		return false, false, stranderrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a boolean, got %T", key, value), nil)
	}

	return boolValue, true, nil
}

// CheckRequired validates that all keys in the 'required' list exist in the
// params map.
func CheckRequired(params map[string]interface{}, required []string) error {
	for _, key := range required {
		if _, exists := params[key]; !exists {
			return stranderrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
		}
	}
	return nil
}

// CheckAllowed validates that only keys from the 'allowed' list exist in the
// params map. Skips the check if 'allowed' is empty.
func CheckAllowed(params map[string]interface{}, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = struct{}{}
	}

	for key := range params {
		if _, isAllowed := allowedSet[key]; !isAllowed {
			return stranderrors.NewValidationError(fmt.Sprintf("unknown parameter '%s' provided", key), nil)
		}
	}
	return nil
}

// Coalesce returns the first non-nil value among the provided arguments,
// treating typed nils (nil pointers, slices, maps) as nil.
func Coalesce(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
				if rv.IsNil() {
					continue
				}
			}
			return v
		}
	}
	return nil
}
