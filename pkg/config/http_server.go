package config

import (
	"fmt"
)

type HttpServer struct {
	Enabled bool   `default:"true"`
	Host    string `default:"127.0.0.1"`
	Port    uint16 `default:"8080"`
}

func (s *HttpServer) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
