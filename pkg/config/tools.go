package config

type Tools struct {
	NativeLibraryDir string   `split_words:"true"`
	LocalBinaryDir   string   `split_words:"true" default:"bin"`
	InstallDirs      []string `split_words:"true" default:"/system/xbin,/system/bin"`
	VersionName      string   `split_words:"true" default:"dev"`
	VersionCode      int      `split_words:"true" default:"1"`
}
