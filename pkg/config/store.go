package config

import (
	"time"
)

type StoreType string

const (
	StoreTypeBBolt StoreType = "bbolt"
	StoreTypeFile  StoreType = "file"
)

type Store struct {
	Type    StoreType `default:"bbolt"`
	Path    string
	Timeout time.Duration `default:"5s"`
}
