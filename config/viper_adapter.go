/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter implements DataProvider on top of viper.
// Values are converted with spf13/cast and conversion errors carry the key.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter with an empty viper instance.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper: viper.New()}
}

// UseEnvVars makes every key overridable from the environment.
// Key segments are joined with "_": with the "MOBGAMES" prefix
// "rateLimit.generalLimit" is looked up as MOBGAMES_RATELIMIT_GENERALLIMIT.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault registers a value used only when neither the config source nor the environment has the key.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigFile(path)
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadInConfig()
}

func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// IsSet reports whether the key has a value in any source. Keys are case-insensitive.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return getAs(va, key, cast.ToBoolE)
}

func (va *ViperAdapter) GetInt(key string) (int, error) {
	return getAs(va, key, cast.ToIntE)
}

func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return getAs(va, key, cast.ToFloat64E)
}

func (va *ViperAdapter) GetString(key string) (string, error) {
	return getAs(va, key, cast.ToStringE)
}

// GetDuration accepts time.Duration strings ("90s") and integer nanoseconds. A missing key is zero.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	if va.Get(key) == nil {
		return 0, nil
	}
	return getAs(va, key, cast.ToDurationE)
}

// GetStringFromSet returns the string value of the key if it's one of the allowed values.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for i := range set {
		if set[i] == str || ignoreCase && strings.EqualFold(set[i], str) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice returns a list value. A plain string (which is what environment
// variables give) is split by commas and every item is trimmed.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	switch v := va.Get(key).(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		items := strings.Split(v, ",")
		for i, item := range items {
			items[i] = strings.TrimSpace(item)
		}
		return items, nil
	}
	return getAs(va, key, cast.ToStringSliceE)
}

// GetByteSize returns a size in bytes given either as a number or as a human-readable string ("1M", "512KB", "1Mi").
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	var size ByteSize
	switch v := va.Get(key).(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case float32, float64:
		f := cast.ToFloat64(v)
		if f < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %v", f))
		}
		return ByteSize(f), nil
	case string:
		return size, WrapKeyErrIfNeeded(key, size.UnmarshalText([]byte(v)))
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for byte size: %T", v))
		}
		return size, WrapKeyErrIfNeeded(key, size.UnmarshalText([]byte(cast.ToString(n))))
	}
}

// UnmarshalKey decodes the subtree under the key into rawVal with mapstructure.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	viperOpts := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		viperOpts = append(viperOpts, viper.DecoderConfigOption(opt))
	}
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, viperOpts...))
}

func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func getAs[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	val, err := castFn(va.Get(key))
	return val, WrapKeyErrIfNeeded(key, err)
}
