package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const envPrefix = "APP_"

// applyEnvOverrides sets fields from APP_<SECTION>__<KEY> variables, matching the toml
// tags. Nested tables use another "__", e.g. APP_AUTH__EIP712__CHAIN_ID.
func applyEnvOverrides(cfg *Config, environ []string) error {
	overrides := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) || !strings.Contains(key, "__") {
			continue
		}
		overrides[strings.ToUpper(strings.TrimPrefix(key, envPrefix))] = value
	}
	if len(overrides) == 0 {
		return nil
	}
	return setFields(reflect.ValueOf(cfg).Elem(), "", overrides)
}

func setFields(v reflect.Value, prefix string, overrides map[string]string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := strings.Split(field.Tag.Get("toml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		name := strings.ToUpper(tag)
		if prefix != "" {
			name = prefix + "__" + name
		}

		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := setFields(fv, name, overrides); err != nil {
				return err
			}
			continue
		}

		raw, ok := overrides[name]
		if !ok {
			continue
		}
		if err := setValue(fv, raw); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
	}
	return nil
}

func setValue(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
