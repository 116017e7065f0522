/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes. In config files it's an integer or a string like "1M", "512KB" or "1Mi".
type ByteSize uint64

// TimeDuration is a duration. In config files it's an integer number of nanoseconds or a string like "5m".
type TimeDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*ByteSize)(nil)
	_ encoding.TextUnmarshaler = (*TimeDuration)(nil)
)

// UnmarshalText implements encoding.TextUnmarshaler. mapstructure uses it through TextUnmarshallerHookFunc.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, isInt, err := parseNonNegativeInt(string(text))
	if err != nil {
		return err
	}
	if !isInt {
		if n, err = parseByteSize(string(text)); err != nil {
			return err
		}
	}
	*b = ByteSize(n)
	return nil
}

// JSON and YAML (un)marshaling goes through the text form.
func (b *ByteSize) UnmarshalJSON(data []byte) error     { return unmarshalJSONText(data, b) }
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error { return unmarshalYAMLText(node, b) }
func (b ByteSize) MarshalJSON() ([]byte, error)         { return json.Marshal(b.String()) }
func (b ByteSize) MarshalYAML() (interface{}, error)    { return b.String(), nil }

// String returns the bytefmt representation, e.g. "100M".
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	n, isInt, err := parseNonNegativeInt(string(text))
	if err != nil {
		return err
	}
	if isInt {
		*d = TimeDuration(n)
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", text, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// JSON and YAML (un)marshaling goes through the text form.
func (d *TimeDuration) UnmarshalJSON(data []byte) error     { return unmarshalJSONText(data, d) }
func (d *TimeDuration) UnmarshalYAML(node *yaml.Node) error { return unmarshalYAMLText(node, d) }
func (d TimeDuration) MarshalJSON() ([]byte, error)         { return json.Marshal(d.String()) }
func (d TimeDuration) MarshalYAML() (interface{}, error)    { return d.String(), nil }

// String returns the time.Duration representation, e.g. "1m30s".
func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// unmarshalJSONText accepts both JSON strings and bare numbers.
func unmarshalJSONText(data []byte, u encoding.TextUnmarshaler) error {
	return u.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

func unmarshalYAMLText(node *yaml.Node, u encoding.TextUnmarshaler) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: scalar value is expected", node.Line)
	}
	return u.UnmarshalText([]byte(node.Value))
}

// parseNonNegativeInt reports isInt=false without error if s is not an integer at all.
func parseNonNegativeInt(s string) (n int64, isInt bool, err error) {
	n, convErr := strconv.ParseInt(s, 10, 64)
	if convErr != nil {
		return 0, false, nil
	}
	if n < 0 {
		return 0, true, fmt.Errorf("negative value is not allowed: %d", n)
	}
	return n, true, nil
}

// parseByteSize understands bytefmt units and the k8s-style power-of-two suffixes ("Ki", "Mi", ...).
func parseByteSize(s string) (int64, error) {
	v := strings.TrimSpace(s)
	if len(v) > 2 && v[len(v)-1] == 'i' && strings.ContainsRune("KMGT", rune(v[len(v)-2])) {
		v = v[:len(v)-1]
	}
	n, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return int64(n), nil
}
