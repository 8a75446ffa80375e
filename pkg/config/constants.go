package config

const (
	EnvPrefix = "QUEVENDI"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)
