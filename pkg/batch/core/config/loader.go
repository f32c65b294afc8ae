package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams are the fx dependencies of NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// LoadConfig builds the configuration in four layers:
// defaults from NewConfig, the .env file (into the process environment), the embedded YAML
// with ${VAR} placeholders expanded, and finally environment variables named after the yaml path
// (BATCH_CHUNK_SIZE, SYSTEM_LOGGING_LEVEL, DATABASE_DEFAULT_HOST...).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	raw, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	if cfg.Database == nil {
		cfg.Database = map[string]interface{}{}
	}
	if cfg.Storage == nil {
		cfg.Storage = map[string]interface{}{}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider loads, validates and returns the configuration, and applies the log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	expander := params.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.System.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadStructFromEnv walks val and overrides every field whose environment variable is set.
// The variable name is the upper-cased yaml path joined with underscores.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		tag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		envName := strings.ToUpper(prefix + tag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envName+"_"); err != nil {
				return err
			}
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String &&
			field.Type().Elem().Kind() == reflect.Interface:
			loadSectionsFromEnv(field, envName+"_")
		default:
			envValue, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := setField(field, envValue); err != nil {
				return fmt.Errorf("failed to set '%s' from %s: %w", typ.Field(i).Name, envName, err)
			}
		}
	}
	return nil
}

// nestedSectionKeys are the adapter keys holding a nested block even when the YAML omits them.
var nestedSectionKeys = []string{"pool", "params"}

// loadSectionsFromEnv applies variables like DATABASE_DEFAULT_HOST=db to map["default"]["host"].
// The first segment after the prefix is the section name; the rest, lower-cased, is the key.
// A key starting with a nested block name goes into that block, so
// DATABASE_DEFAULT_POOL_MAX_OPEN_CONNS=4 sets map["default"]["pool"]["max_open_conns"].
func loadSectionsFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts := strings.SplitN(kv[0], "_", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		name, key := strings.ToLower(parts[0]), strings.ToLower(parts[1])

		section := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(name)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				section = m
			}
		}
		assignSectionKey(section, key, kv[1])
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(section))
	}
}

func assignSectionKey(section map[string]interface{}, key, value string) {
	blocks := append([]string{}, nestedSectionKeys...)
	for name, v := range section {
		if _, ok := v.(map[string]interface{}); ok {
			blocks = append(blocks, name)
		}
	}
	for _, block := range blocks {
		sub, ok := strings.CutPrefix(key, block+"_")
		if !ok || sub == "" {
			continue
		}
		nested, _ := section[block].(map[string]interface{})
		if nested == nil {
			nested = map[string]interface{}{}
			section[block] = nested
		}
		// keep the YAML spelling of keys like parseTime
		for existing := range nested {
			if strings.EqualFold(existing, sub) {
				sub = existing
				break
			}
		}
		nested[sub] = value
		return
	}
	section[key] = value
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		parts := strings.Split(value, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p))
			}
		}
		field.Set(out)
	}
	return nil
}
