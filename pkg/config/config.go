// Package config loads bridge configuration from an optional YAML file
// and command-line flags (a flag overrides the file); environment
// variables then fill only the options still unset, and defaults fill
// the rest, following the same layered pattern the teacher's own
// process bootstrap would use for a Cobra-based service.
package config

import (
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Defaults, named after the original implementation's own constants
// (DEF_UNIT, DEF_CODE, ...).
const (
	DefUnit    = "test"
	DefCode    = "lora-ifroglab"
	DefMqURI   = "redis://localhost:6379/0"
	DefDevPath = "/dev/ttyACM0"
	DefFreq    = 91500
	DefPower   = 0
)

// Config is the set of options recognized by both bridge binaries.
type Config struct {
	Unit    string `yaml:"unit"`
	Code    string `yaml:"code"`
	MqURI   string `yaml:"mqUri"`
	DevPath string `yaml:"devPath"`
	Freq    uint32 `yaml:"freq"`
	Power   uint8  `yaml:"power"`
}

// Load reads an optional YAML file at path (ignored if empty or
// missing), merges flags already parsed into fs, fills still-empty
// fields from environment variables, then fills any still-missing field
// with its default via ApplyDefault.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return Config{}, uerr
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	if fs != nil {
		if v, err := fs.GetString("unit"); err == nil && fs.Changed("unit") {
			cfg.Unit = v
		}
		if v, err := fs.GetString("code"); err == nil && fs.Changed("code") {
			cfg.Code = v
		}
		if v, err := fs.GetString("mq-uri"); err == nil && fs.Changed("mq-uri") {
			cfg.MqURI = v
		}
		if v, err := fs.GetString("dev-path"); err == nil && fs.Changed("dev-path") {
			cfg.DevPath = v
		}
		if v, err := fs.GetUint32("freq"); err == nil && fs.Changed("freq") {
			cfg.Freq = v
		}
		if v, err := fs.GetUint8("power"); err == nil && fs.Changed("power") {
			cfg.Power = v
		}
	}

	applyEnv(&cfg)
	return ApplyDefault(cfg), nil
}

// applyEnv sets each cfg field that is still zero after the file and
// flags from its environment variable, named LORA_IFROGLAB_ followed by
// the option name upper-cased with underscores (e.g.
// LORA_IFROGLAB_MQ_URI). A value from the file or a flag is never
// replaced: flag/file value wins if present, otherwise env, otherwise
// default.
func applyEnv(cfg *Config) {
	if cfg.Unit == "" {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_UNIT"); ok {
			cfg.Unit = v
		}
	}
	if cfg.Code == "" {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_CODE"); ok {
			cfg.Code = v
		}
	}
	if cfg.MqURI == "" {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_MQ_URI"); ok {
			cfg.MqURI = v
		}
	}
	if cfg.DevPath == "" {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_DEV_PATH"); ok {
			cfg.DevPath = v
		}
	}
	if cfg.Freq == 0 {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_FREQ"); ok {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				cfg.Freq = uint32(n)
			}
		}
	}
	if cfg.Power == 0 {
		if v, ok := os.LookupEnv("LORA_IFROGLAB_POWER"); ok {
			if n, err := strconv.ParseUint(v, 10, 8); err == nil {
				cfg.Power = uint8(n)
			}
		}
	}
}

// ApplyDefault fills any zero-valued field with its default.
//
// dev_path intentionally falls back to DefCode, not DefDevPath: this
// reproduces the original implementation's own apply_default bug
// (config.rs maps a missing dev_path to DEF_CODE) verbatim, per
// spec.md §9's instruction to preserve it and flag it as a probable
// source bug. See DESIGN.md.
func ApplyDefault(cfg Config) Config {
	if cfg.Unit == "" {
		cfg.Unit = DefUnit
	}
	if cfg.Code == "" {
		cfg.Code = DefCode
	}
	if cfg.MqURI == "" {
		cfg.MqURI = DefMqURI
	}
	if cfg.DevPath == "" {
		cfg.DevPath = DefCode
	}
	if cfg.Freq == 0 {
		cfg.Freq = DefFreq
	}
	if cfg.Power == 0 {
		cfg.Power = DefPower
	}
	return cfg
}

// RegisterFlags adds the recognized flags to fs, matching the
// original's reg_args: unit, code, mq-uri, dev-path, freq, power.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("unit", "", "unit code")
	fs.String("code", "", "network code")
	fs.String("mq-uri", "", "message broker URI")
	fs.String("dev-path", "", "serial device path, e.g. /dev/ttyACM0")
	fs.Uint32("freq", 0, "frequency in 10kHz units, 86000..102000")
	fs.Uint8("power", 0, "RF power, 0..15 for 2..17 dBm")
}
