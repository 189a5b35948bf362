package synth

import (
	"github.com/compose-spec/compose-go/v2/types"

	"github.com/example/repodeploy/internal/detect"
)

// apiPrefix is the path the reverse proxy forwards to the service stage and
// the value handed to the presentation build as its API base URL.
const apiPrefix = "/api"

// frontendVariant describes how one UI framework is built.
type frontendVariant struct {
	// apiEnv is the build-time variable the framework reads the API base from.
	apiEnv string
	// outputDir is where the production build lands, relative to the tier.
	// Empty means the output is located by searching for index.html.
	outputDir string
}

var frontendVariants = map[detect.PresentationTech]frontendVariant{
	detect.ReactPlain: {apiEnv: "REACT_APP_API_URL", outputDir: "build"},
	detect.ReactVite:  {apiEnv: "VITE_API_URL", outputDir: "dist"},
	detect.Vue:        {apiEnv: "VITE_API_URL", outputDir: "dist"},
	detect.Angular:    {apiEnv: "NG_APP_API_URL"},
}

// serviceVariant selects the service build spec.
type serviceVariant struct {
	runtime        detect.ServiceTech
	systemPackages []string
}

// dataEngine is the data-stage fragment for one database engine.
type dataEngine struct {
	kind        detect.DataTech
	image       string
	port        int
	mountPath   string
	initDir     string
	env         map[string]string
	healthcheck []string
	// condition is what the service stage waits for before starting.
	condition string

	// Connection parameters handed to the service stage.
	scheme   string
	database string
	user     string
	password string
	// urlEnv is an extra variable carrying the connection URL, if the
	// engine's client libraries conventionally read one.
	urlEnv string
}

// Credentials baked into every generated data stage. Deployments are local
// and disposable.
const (
	dbName     = "app"
	dbUser     = "app"
	dbPassword = "app-password"
)

var (
	mysqlEngine = dataEngine{
		kind:      detect.MySQL,
		image:     "mysql:8.0",
		port:      3306,
		mountPath: "/var/lib/mysql",
		initDir:   "/docker-entrypoint-initdb.d",
		env: map[string]string{
			"MYSQL_DATABASE":      dbName,
			"MYSQL_USER":          dbUser,
			"MYSQL_PASSWORD":      dbPassword,
			"MYSQL_ROOT_PASSWORD": dbPassword,
		},
		healthcheck: []string{"CMD", "mysqladmin", "ping", "-h", "localhost"},
		condition:   types.ServiceConditionHealthy,
		scheme:      "mysql",
		database:    dbName,
		user:        dbUser,
		password:    dbPassword,
	}
	postgresEngine = dataEngine{
		kind:      detect.Postgres,
		image:     "postgres:16",
		port:      5432,
		mountPath: "/var/lib/postgresql/data",
		initDir:   "/docker-entrypoint-initdb.d",
		env: map[string]string{
			"POSTGRES_DB":       dbName,
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
		},
		healthcheck: []string{"CMD-SHELL", "pg_isready -U " + dbUser + " -d " + dbName},
		condition:   types.ServiceConditionHealthy,
		scheme:      "postgres",
		database:    dbName,
		user:        dbUser,
		password:    dbPassword,
	}
	mongoEngine = dataEngine{
		kind:      detect.MongoDB,
		image:     "mongo:7",
		port:      27017,
		mountPath: "/data/db",
		initDir:   "/docker-entrypoint-initdb.d",
		env: map[string]string{
			"MONGO_INITDB_DATABASE": dbName,
		},
		condition: types.ServiceConditionStarted,
		scheme:    "mongodb",
		database:  dbName,
		urlEnv:    "MONGO_URI",
	}
	redisEngine = dataEngine{
		kind:        detect.Redis,
		image:       "redis:7",
		port:        6379,
		mountPath:   "/data",
		healthcheck: []string{"CMD", "redis-cli", "ping"},
		condition:   types.ServiceConditionHealthy,
		scheme:      "redis",
		database:    "0",
		urlEnv:      "REDIS_URL",
	}
)

var (
	nodeService           = serviceVariant{runtime: detect.Node}
	pythonService         = serviceVariant{runtime: detect.PythonFlask}
	pythonMySQLService    = serviceVariant{runtime: detect.PythonFlask, systemPackages: []string{"default-libmysqlclient-dev", "pkg-config", "build-essential"}}
	pythonPostgresService = serviceVariant{runtime: detect.PythonFlask, systemPackages: []string{"libpq-dev", "gcc"}}
)

type pair struct {
	service detect.ServiceTech
	data    detect.DataTech
}

type recipe struct {
	service serviceVariant
	data    dataEngine
}

// recipes enumerates every supported (service, data) pairing. Anything
// absent is rejected with UnsupportedCombinationError.
var recipes = map[pair]recipe{
	{detect.Node, detect.MySQL}:    {service: nodeService, data: mysqlEngine},
	{detect.Node, detect.Postgres}: {service: nodeService, data: postgresEngine},
	{detect.Node, detect.MongoDB}:  {service: nodeService, data: mongoEngine},
	{detect.Node, detect.Redis}:    {service: nodeService, data: redisEngine},

	{detect.PythonFlask, detect.MySQL}:    {service: pythonMySQLService, data: mysqlEngine},
	{detect.PythonFlask, detect.Postgres}: {service: pythonPostgresService, data: postgresEngine},
	{detect.PythonFlask, detect.MongoDB}:  {service: pythonService, data: mongoEngine},
	{detect.PythonFlask, detect.Redis}:    {service: pythonService, data: redisEngine},
}

// Supported reports whether the pairing has a recipe.
func Supported(service detect.ServiceTech, data detect.DataTech) bool {
	_, ok := recipes[pair{service, data}]
	return ok
}
