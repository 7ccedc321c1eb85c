package config

type RootShell struct {
	Command   []string `default:"su"`
	CheckRoot bool     `split_words:"true" default:"true"`
}
