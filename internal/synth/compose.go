package synth

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/compose-spec/compose-go/v2/types"

	"github.com/example/repodeploy/internal/layout"
)

const (
	frontendExportDir = "/export"
	proxyHTMLDir      = "/usr/share/nginx/html"
	proxyConfTarget   = "/etc/nginx/conf.d/default.conf"
	restartPolicy     = "unless-stopped"
)

// buildProject assembles the fixed four-stage topology: the frontend stage
// exports static assets into a shared volume, the proxy serves them and
// forwards the API prefix to the backend, and the backend waits on the
// database according to the engine's start condition.
func buildProject(name, network string, dirs map[layout.Role]string, engine dataEngine, servicePort, proxyPort int) *types.Project {
	attach := func() map[string]*types.ServiceNetworkConfig {
		return map[string]*types.ServiceNetworkConfig{network: nil}
	}

	frontend := types.ServiceConfig{
		Build: &types.BuildConfig{Context: "./" + dirs[layout.Presentation], Dockerfile: BuildSpecFile},
		Volumes: []types.ServiceVolumeConfig{
			{Type: types.VolumeTypeVolume, Source: frontendVolume, Target: frontendExportDir},
		},
		Networks: attach(),
	}

	backend := types.ServiceConfig{
		Build:       &types.BuildConfig{Context: "./" + dirs[layout.Service], Dockerfile: BuildSpecFile},
		Expose:      types.StringOrNumberList{strconv.Itoa(servicePort)},
		Environment: serviceEnvironment(engine, servicePort),
		DependsOn: types.DependsOnConfig{
			DatabaseService: {Condition: engine.condition, Required: true},
		},
		Restart:  restartPolicy,
		Networks: attach(),
	}

	database := types.ServiceConfig{
		Build:       &types.BuildConfig{Context: "./" + dirs[layout.Data], Dockerfile: BuildSpecFile},
		Expose:      types.StringOrNumberList{strconv.Itoa(engine.port)},
		Environment: mapping(engine.env),
		Volumes: []types.ServiceVolumeConfig{
			{Type: types.VolumeTypeVolume, Source: dataVolume, Target: engine.mountPath},
		},
		HealthCheck: healthcheck(engine.healthcheck),
		Restart:     restartPolicy,
		Networks:    attach(),
	}

	proxy := types.ServiceConfig{
		Image: proxyImage,
		Ports: []types.ServicePortConfig{
			{Target: 80, Published: strconv.Itoa(proxyPort), Protocol: "tcp"},
		},
		Volumes: []types.ServiceVolumeConfig{
			{Type: types.VolumeTypeVolume, Source: frontendVolume, Target: proxyHTMLDir, ReadOnly: true},
			{Type: types.VolumeTypeBind, Source: "./" + ProxyConfigFile, Target: proxyConfTarget, ReadOnly: true},
		},
		DependsOn: types.DependsOnConfig{
			FrontendService: {Condition: types.ServiceConditionCompletedSuccessfully, Required: true},
			BackendService:  {Condition: types.ServiceConditionStarted, Required: true},
		},
		Restart:  restartPolicy,
		Networks: attach(),
	}

	return &types.Project{
		Name: name,
		Services: types.Services{
			FrontendService: frontend,
			BackendService:  backend,
			DatabaseService: database,
			ProxyService:    proxy,
		},
		Networks: types.Networks{
			network: {Driver: "bridge"},
		},
		Volumes: types.Volumes{
			frontendVolume: {},
			dataVolume:     {},
		},
	}
}

// serviceEnvironment is the connection contract handed to the backend.
func serviceEnvironment(engine dataEngine, servicePort int) types.MappingWithEquals {
	env := map[string]string{
		"PORT":         strconv.Itoa(servicePort),
		"DB_HOST":      DatabaseService,
		"DB_PORT":      strconv.Itoa(engine.port),
		"DB_NAME":      engine.database,
		"DB_USER":      engine.user,
		"DB_PASSWORD":  engine.password,
		"DATABASE_URL": connectionURL(engine),
	}
	if engine.urlEnv != "" {
		env[engine.urlEnv] = env["DATABASE_URL"]
	}
	return mapping(env)
}

func connectionURL(engine dataEngine) string {
	u := url.URL{
		Scheme: engine.scheme,
		Host:   fmt.Sprintf("%s:%d", DatabaseService, engine.port),
		Path:   "/" + engine.database,
	}
	if engine.user != "" {
		u.User = url.UserPassword(engine.user, engine.password)
	}
	return u.String()
}

func mapping(env map[string]string) types.MappingWithEquals {
	if len(env) == 0 {
		return nil
	}
	out := make(types.MappingWithEquals, len(env))
	for k, v := range env {
		value := v
		out[k] = &value
	}
	return out
}

func healthcheck(test []string) *types.HealthCheckConfig {
	if len(test) == 0 {
		return nil
	}
	interval := types.Duration(5 * time.Second)
	timeout := types.Duration(5 * time.Second)
	retries := uint64(20)
	return &types.HealthCheckConfig{
		Test:     types.HealthCheckTest(test),
		Interval: &interval,
		Timeout:  &timeout,
		Retries:  &retries,
	}
}
