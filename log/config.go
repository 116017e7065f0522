/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mobgames/site/config"
)

// Level is a logging level. Messages below the configured level are dropped.
type Level string

// Format is the encoding of log entries.
type Format string

// Output is where log entries are written.
type Output string

// FieldMaskFormat tells how a secret is embedded into a logged string, so a matching mask can be chosen.
type FieldMaskFormat string

// Known values of Level, Format, Output and FieldMaskFormat.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"

	FormatJSON Format = "json"
	FormatText Format = "text"

	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"

	FieldMaskFormatHTTPHeader FieldMaskFormat = "http_header"
	FieldMaskFormatJSON       FieldMaskFormat = "json"
	FieldMaskFormatURLEncoded FieldMaskFormat = "urlencoded"
)

// Rotation limits.
const (
	DefaultFileRotationMaxSize    = config.ByteSize(100 * 1024 * 1024)
	MinFileRotationMaxSize        = config.ByteSize(1024 * 1024)
	DefaultFileRotationMaxBackups = 5
	MinFileRotationMaxBackups     = 1
)

const defaultErrorVerboseSuffix = "_verbose"

const cfgKeyPrefix = "log"

const (
	cfgKeyLevel                  = "level"
	cfgKeyFormat                 = "format"
	cfgKeyOutput                 = "output"
	cfgKeyNoColor                = "noColor"
	cfgKeyAddCaller              = "addCaller"
	cfgKeyFilePath               = "file.path"
	cfgKeyRotationCompress       = "file.rotation.compress"
	cfgKeyRotationMaxSize        = "file.rotation.maxSize"
	cfgKeyRotationMaxBackups     = "file.rotation.maxBackups"
	cfgKeyRotationMaxAgeDays     = "file.rotation.maxAgeDays"
	cfgKeyRotationLocalTimeNames = "file.rotation.localTimeInNames"
	cfgKeyErrorNoVerbose         = "error.noVerbose"
	cfgKeyErrorVerboseSuffix     = "error.verboseSuffix"
	cfgKeyMaskingEnabled         = "masking.enabled"
	cfgKeyMaskingDefaultRules    = "masking.useDefaultRules"
	cfgKeyMaskingRules           = "masking.rules"
)

// Config is the "log" configuration section.
type Config struct {
	Level     Level            `mapstructure:"level" yaml:"level" json:"level"`
	Format    Format           `mapstructure:"format" yaml:"format" json:"format"`
	Output    Output           `mapstructure:"output" yaml:"output" json:"output"`
	NoColor   bool             `mapstructure:"noColor" yaml:"noColor" json:"noColor"`
	AddCaller bool             `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`
	File      FileOutputConfig `mapstructure:"file" yaml:"file" json:"file"`
	Error     ErrorConfig      `mapstructure:"error" yaml:"error" json:"error"`
	Masking   MaskingConfig    `mapstructure:"masking" yaml:"masking" json:"masking"`
}

// FileOutputConfig is used when Output is "file".
type FileOutputConfig struct {
	// Path may contain {{starttime}}, {{pid}} and {{hostname}} placeholders.
	Path     string             `mapstructure:"path" yaml:"path" json:"path"`
	Rotation FileRotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// FileRotationConfig is passed to lumberjack.
type FileRotationConfig struct {
	Compress         bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize          config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups       int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays       int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
	LocalTimeInNames bool            `mapstructure:"localTimeInNames" yaml:"localTimeInNames" json:"localTimeInNames"`
}

// ErrorConfig controls the additional "error<VerboseSuffix>" field
// written for errors implementing fmt.Formatter.
type ErrorConfig struct {
	NoVerbose     bool   `mapstructure:"noVerbose" yaml:"noVerbose" json:"noVerbose"`
	VerboseSuffix string `mapstructure:"verboseSuffix" yaml:"verboseSuffix" json:"verboseSuffix"`
}

// MaskingConfig configures secret masking in string fields and messages.
type MaskingConfig struct {
	Enabled         bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	UseDefaultRules bool                `mapstructure:"useDefaultRules" yaml:"useDefaultRules" json:"useDefaultRules"`
	Rules           []MaskingRuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
}

// MaskingRuleConfig masks values of Field in the given Formats.
// Masks are extra regexp replacements applied to the whole string.
type MaskingRuleConfig struct {
	Field   string            `mapstructure:"field" yaml:"field" json:"field"`
	Formats []FieldMaskFormat `mapstructure:"formats" yaml:"formats" json:"formats"`
	Masks   []MaskConfig      `mapstructure:"masks" yaml:"masks" json:"masks"`
}

// MaskConfig replaces every match of RegExp with Mask.
type MaskConfig struct {
	RegExp string `mapstructure:"regexp" yaml:"regexp" json:"regexp"`
	Mask   string `mapstructure:"mask" yaml:"mask" json:"mask"`
}

func (mc MaskingConfig) effectiveRules() []MaskingRuleConfig {
	rules := append([]MaskingRuleConfig{}, mc.Rules...)
	if mc.UseDefaultRules {
		rules = append(rules, DefaultMasks...)
	}
	return rules
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a Config equal to what config.Loader produces from empty input.
// Secret masking is on: OAuth codes, Slack and Airtable tokens never reach the output.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: OutputStdout,
		File: FileOutputConfig{Rotation: FileRotationConfig{
			MaxSize:    DefaultFileRotationMaxSize,
			MaxBackups: DefaultFileRotationMaxBackups,
		}},
		Error:   ErrorConfig{VerboseSuffix: defaultErrorVerboseSuffix},
		Masking: MaskingConfig{Enabled: true, UseDefaultRules: true},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return cfgKeyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	defaults := map[string]interface{}{
		cfgKeyLevel:               string(LevelInfo),
		cfgKeyFormat:              string(FormatJSON),
		cfgKeyOutput:              string(OutputStdout),
		cfgKeyErrorVerboseSuffix:  defaultErrorVerboseSuffix,
		cfgKeyRotationMaxSize:     DefaultFileRotationMaxSize.String(),
		cfgKeyRotationMaxBackups:  DefaultFileRotationMaxBackups,
		cfgKeyMaskingEnabled:      true,
		cfgKeyMaskingDefaultRules: true,
	}
	for key, val := range defaults {
		dp.SetDefault(key, val)
	}
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	level, err := getLowerFromSet(dp, cfgKeyLevel, LevelError, LevelWarn, LevelInfo, LevelDebug)
	if err != nil {
		return err
	}
	format, err := getLowerFromSet(dp, cfgKeyFormat, FormatJSON, FormatText)
	if err != nil {
		return err
	}
	output, err := getLowerFromSet(dp, cfgKeyOutput, OutputStdout, OutputStderr, OutputFile)
	if err != nil {
		return err
	}
	c.Level, c.Format, c.Output = Level(level), Format(format), Output(output)

	if c.NoColor, err = dp.GetBool(cfgKeyNoColor); err != nil {
		return err
	}
	if c.AddCaller, err = dp.GetBool(cfgKeyAddCaller); err != nil {
		return err
	}
	if err = c.setFile(dp); err != nil {
		return err
	}
	if c.Error.NoVerbose, err = dp.GetBool(cfgKeyErrorNoVerbose); err != nil {
		return err
	}
	if c.Error.VerboseSuffix, err = dp.GetString(cfgKeyErrorVerboseSuffix); err != nil {
		return err
	}
	return c.setMasking(dp)
}

func getLowerFromSet[T ~string](dp config.DataProvider, key string, allowed ...T) (string, error) {
	set := make([]string, len(allowed))
	for i := range allowed {
		set[i] = string(allowed[i])
	}
	val, err := dp.GetStringFromSet(key, set, true)
	return strings.ToLower(val), err
}

func (c *Config) setFile(dp config.DataProvider) error {
	var err error
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	r := &c.File.Rotation
	if r.Compress, err = dp.GetBool(cfgKeyRotationCompress); err != nil {
		return err
	}
	if r.LocalTimeInNames, err = dp.GetBool(cfgKeyRotationLocalTimeNames); err != nil {
		return err
	}
	if r.MaxSize, err = dp.GetByteSize(cfgKeyRotationMaxSize); err != nil {
		return err
	}
	if r.MaxSize < MinFileRotationMaxSize {
		return dp.WrapKeyErr(cfgKeyRotationMaxSize, fmt.Errorf("should be >= %s", MinFileRotationMaxSize))
	}
	if r.MaxBackups, err = dp.GetInt(cfgKeyRotationMaxBackups); err != nil {
		return err
	}
	if r.MaxBackups < MinFileRotationMaxBackups {
		return dp.WrapKeyErr(cfgKeyRotationMaxBackups, fmt.Errorf("should be >= %d", MinFileRotationMaxBackups))
	}
	if r.MaxAgeDays, err = dp.GetInt(cfgKeyRotationMaxAgeDays); err != nil {
		return err
	}
	if r.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyRotationMaxAgeDays, errors.New("should be >= 0"))
	}
	return nil
}

func (c *Config) setMasking(dp config.DataProvider) error {
	var err error
	m := &c.Masking
	if m.Enabled, err = dp.GetBool(cfgKeyMaskingEnabled); err != nil {
		return err
	}
	if m.UseDefaultRules, err = dp.GetBool(cfgKeyMaskingDefaultRules); err != nil {
		return err
	}
	if err = dp.UnmarshalKey(cfgKeyMaskingRules, &m.Rules); err != nil {
		return err
	}
	for i := range m.Rules {
		if m.Rules[i].Field == "" {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d].field", cfgKeyMaskingRules, i), errors.New("cannot be empty"))
		}
	}
	return nil
}
