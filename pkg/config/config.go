package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LogLevel           string       `split_words:"true" default:"info"`
	Store              *Store       `split_words:"true"`
	HttpServer         *HttpServer  `split_words:"true"`
	DebugServer        *DebugServer `split_words:"true"`
	RootShell          *RootShell   `split_words:"true"`
	Tools              *Tools       `split_words:"true"`
	Backend            *Backend     `split_words:"true"`
	Resolver           *Resolver    `split_words:"true"`
	CorsAllowedOrigins []string     `split_words:"true" default:"*"`
	IntegrationSecret  string       `split_words:"true"`
}

func Load(prefix string) (*Config, error) {
	prefix = strings.ToUpper(prefix)
	prefix = strings.ReplaceAll(prefix, "-", "_")
	prefix = strings.ReplaceAll(prefix, " ", "_")
	var config Config
	if err := envconfig.Process(prefix, &config); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	return &config, nil
}
