package config

import (
	"time"
)

type Resolver struct {
	Servers  []string
	Timeout  time.Duration `default:"10s"`
	CacheTTL time.Duration `split_words:"true" default:"1m"`
}
