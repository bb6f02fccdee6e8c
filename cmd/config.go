// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

const (
	configName = "kocomstat"
	configType = "yaml"
	envPrefix  = "KOCOM"
)

// Config is the merged configuration of file, environment and flags.
type Config struct {
	Account      string        `mapstructure:"account"`
	Host         string        `mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	UsernameHash string        `mapstructure:"username_hash" validate:"required,hexadecimal,len=80"`
	PasswordHash string        `mapstructure:"password_hash" validate:"required,hexadecimal,len=80"`
	PushToken    string        `mapstructure:"push_token" validate:"required,hexadecimal,len=512"`
	Phone        string        `mapstructure:"phone" validate:"required,hexadecimal,len=32"`
	Protocol     string        `mapstructure:"protocol" validate:"oneof=current legacy"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"min=1s"`
	Interval     time.Duration `mapstructure:"interval" validate:"min=1m"`
	StateFile    string        `mapstructure:"state_file"`
	Listen       string        `mapstructure:"listen" validate:"required"`
	BridgeURL    string        `mapstructure:"bridge_url" validate:"omitempty,url"`
	BridgeUser   string        `mapstructure:"bridge_username"`
	NoSSLVerify  bool          `mapstructure:"no_ssl_verify"`
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
}

// credentialFields are skipped when validating a config that login is about
// to fill in.
var credentialFields = []string{"Host", "UsernameHash", "PasswordHash"}

var validate = validator.New()

// setDefaults registers the default of every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", kocom.DefaultPort)
	v.SetDefault("push_token", strings.Repeat("0", kocom.PushTokenWidth))
	v.SetDefault("phone", strings.Repeat("0", kocom.PhoneWidth))
	v.SetDefault("protocol", kocom.ProtocolCurrent.String())
	v.SetDefault("timeout", kocom.DefaultStepTimeout)
	v.SetDefault("interval", sensor.DefaultInterval)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
}

// bindFlags maps every dashed flag onto its underscored config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// bindEnv registers every Config key with the environment. AutomaticEnv alone
// only reaches keys that already have a default or a bound flag.
func bindEnv(v *viper.Viper) {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			_ = v.BindEnv(key)
		}
	}
}

// configDir is where login writes the config file by default.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", configName)
}

// readConfig loads file and environment into v. A missing default config
// file is not an error; a missing explicit one is.
func readConfig(v *viper.Viper, file string) error {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// loadConfig decodes v into a Config and validates it. Fields listed in
// except are not validated.
func loadConfig(v *viper.Viper, except ...string) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	c.UsernameHash = strings.ToLower(c.UsernameHash)
	c.PasswordHash = strings.ToLower(c.PasswordHash)
	c.PushToken = strings.ToLower(c.PushToken)
	c.Phone = strings.ToLower(c.Phone)

	var err error
	if len(except) > 0 {
		err = validate.StructExcept(&c, except...)
	} else {
		err = validate.Struct(&c)
	}
	if err != nil {
		return nil, configError(err)
	}
	return &c, nil
}

// configError turns validator output into one readable error.
func configError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "invalid config")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" fails "+fe.Tag())
	}
	return errors.Errorf("invalid config: %s (run \"kocomstat login\" to provision credentials)", strings.Join(msgs, ", "))
}

// ProtocolValue returns the parsed protocol generation.
func (c *Config) ProtocolValue() kocom.Protocol {
	p, _ := kocom.ParseProtocol(c.Protocol)
	return p
}

// Credentials builds the wallpad credentials.
func (c *Config) Credentials() (kocom.Credentials, error) {
	creds, err := kocom.NewCredentials(c.Host, c.UsernameHash, c.PasswordHash, c.PushToken, c.Phone)
	if err != nil {
		return kocom.Credentials{}, err
	}
	return creds.WithPort(c.Port), nil
}
