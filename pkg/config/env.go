package config

const (
	EnvPrefix = "LUMEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LUMEN_DB_DSN"
	EnvDBHost = "LUMEN_DB_HOST"
	EnvDBUser = "LUMEN_DB_USER"
	EnvDBName = "LUMEN_DB_NAME"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
