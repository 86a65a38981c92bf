// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads runtime settings from defaults, an optional YAML file,
// a local .env file and the process environment, in increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned by Validate when any of the completion
// service credentials is absent. The pipeline must not be built in that case.
var ErrMissingCredentials = errors.New("missing completion service credentials")

// Environment variables holding the completion service credentials.
const (
	EnvAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvDeployment = "AZURE_OPENAI_MODEL_DEPLOYMENT_NAME"
	EnvAPIVersion = "AZURE_OPENAI_API_VERSION"
)

type LLMConfig struct {
	Type       string        `mapstructure:"type"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	Deployment string        `mapstructure:"deployment"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Strategy          string `mapstructure:"strategy"`
	AnalysisMaxTokens int    `mapstructure:"analysis_max_tokens"`
	RewriteMaxTokens  int    `mapstructure:"rewrite_max_tokens"`
}

type ResolverConfig struct {
	PublicRegistry string        `mapstructure:"public_registry"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	FeedSelection  string        `mapstructure:"feed_selection"`
}

type CredentialsConfig struct {
	Subject string        `mapstructure:"subject"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Config is the top-level configuration.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Options controls where Load looks for settings.
type Options struct {
	ConfigFile string // optional YAML file
	EnvFile    string // optional dotenv file, defaults to ".env"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.type", "azure")
	v.SetDefault("llm.api_version", "2024-08-01-preview")
	v.SetDefault("llm.timeout", 10*time.Minute)

	v.SetDefault("pipeline.strategy", "graph")
	v.SetDefault("pipeline.analysis_max_tokens", 3000)
	v.SetDefault("pipeline.rewrite_max_tokens", 3500)

	v.SetDefault("resolver.public_registry", "https://api.nuget.org")
	v.SetDefault("resolver.timeout", 6*time.Second)
	v.SetDefault("resolver.concurrency", 4)
	v.SetDefault("resolver.feed_selection", "first")

	v.SetDefault("credentials.subject", "netupgrader")
	v.SetDefault("credentials.ttl", 5*time.Minute)

	v.SetDefault("output.dir", os.TempDir())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// Load builds a Config. A missing .env file is not an error; a missing
// explicitly named config file is.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "load env file %s", envFile)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", opts.ConfigFile)
		}
	}

	v.SetEnvPrefix("NETUPGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"llm.api_key":     EnvAPIKey,
		"llm.endpoint":    EnvEndpoint,
		"llm.deployment":  EnvDeployment,
		"llm.api_version": EnvAPIVersion,
	} {
		if err := v.BindEnv(key, "NETUPGRADER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

// Validate reports ErrMissingCredentials naming every absent value.
func (c *Config) Validate() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.LLM.Endpoint == "" {
		missing = append(missing, EnvEndpoint)
	}
	if c.LLM.Deployment == "" {
		missing = append(missing, EnvDeployment)
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}
