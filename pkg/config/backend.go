package config

type Backend struct {
	ForceUserspace   bool   `split_words:"true" default:"false"`
	KernelModulePath string `split_words:"true" default:"/sys/module/wireguard"`
	ConfigDir        string `split_words:"true"`
	RestoreState     bool   `split_words:"true" default:"true"`
}
