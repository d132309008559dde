package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "PACKFINDERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv  = "PACKFINDERZ_APP_ENV"
	EnvPort    = "PACKFINDERZ_APP_PORT"
	EnvDBDSN   = "PACKFINDERZ_DB_DSN"
	EnvDBHost  = "PACKFINDERZ_DB_HOST"
	EnvDBUser  = "PACKFINDERZ_DB_USER"
	EnvDBName  = "PACKFINDERZ_DB_NAME"
	EnvUseSQL  = "PACKFINDERZ_USE_SQLITE"
	EnvRedis   = "PACKFINDERZ_REDIS_URL"
	EnvJWTKey  = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIss  = "PACKFINDERZ_JWT_ISSUER"
	EnvProgram = "PACKFINDERZ_PROGRAM_PATH"
)
