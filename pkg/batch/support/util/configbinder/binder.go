// Package configbinder decodes free-form configuration maps (adapter sections of the YAML file)
// into typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes properties into target, which must be a pointer to a struct.
// Fields are matched on their `yaml` tags. Strings are converted to numbers and booleans,
// duration strings ("30s") to time.Duration and comma-separated strings to slices.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	if len(properties) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		t := reflect.TypeOf(target)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		return fmt.Errorf("failed to bind properties to %s: %w", t.Name(), err)
	}
	return nil
}

// BindSection looks up name in sections and decodes it into target.
// A missing section leaves target untouched and returns false.
func BindSection(sections map[string]interface{}, name string, target interface{}) (bool, error) {
	raw, ok := sections[name]
	if !ok || raw == nil {
		return false, nil
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return true, fmt.Errorf("configuration section '%s' is a %T, expected a mapping", name, raw)
	}
	return true, BindProperties(props, target)
}
