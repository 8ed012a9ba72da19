package config

type Config interface {
	EnvConfig
	SecurityConfig
}

type mainConfig struct {
	EnvVars
	Security
}

func New() Config {
	return mainConfig{}
}
