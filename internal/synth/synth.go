// Package synth turns a detected stack profile into the build specs,
// orchestration descriptor, reverse-proxy config, and build-exclusion lists
// that deploy it.
package synth

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/example/repodeploy/internal/detect"
	"github.com/example/repodeploy/internal/excludes"
	"github.com/example/repodeploy/internal/layout"
)

// Service names in the generated descriptor.
const (
	FrontendService = "frontend"
	BackendService  = "backend"
	DatabaseService = "database"
	ProxyService    = "proxy"
)

// Artifact file names. The container engine looks for these exact names.
const (
	BuildSpecFile   = "Dockerfile"
	DescriptorFile  = "docker-compose.yml"
	ProxyConfigFile = "nginx.conf"
)

const (
	frontendVolume = "frontend_build"
	dataVolume     = "db_data"
	proxyImage     = "nginx:1.27-alpine"
)

// Options tune a synthesis run.
type Options struct {
	// ProjectName names the orchestration project.
	ProjectName string
	// ProxyPort is the host port the reverse proxy publishes.
	ProxyPort int
	// Network overrides the generated network name. Tests and re-renders use it
	// to get stable output.
	Network string
}

// Artifact is one generated file, addressed relative to the run root.
type Artifact struct {
	Path    string
	Content []byte
}

// ArtifactSet is everything Synthesize produced for one run.
type ArtifactSet struct {
	Project *types.Project
	Network string
	Files   []Artifact
}

// Paths lists the artifact paths in generation order.
func (s ArtifactSet) Paths() []string {
	out := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		out = append(out, f.Path)
	}
	return out
}

// File returns the artifact at rel, if generated.
func (s ArtifactSet) File(rel string) (Artifact, bool) {
	for _, f := range s.Files {
		if f.Path == rel {
			return f, true
		}
	}
	return Artifact{}, false
}

// UnsupportedCombinationError is returned for any stack the recipe table does
// not enumerate.
type UnsupportedCombinationError struct {
	Presentation detect.PresentationTech
	Service      detect.ServiceTech
	Data         detect.DataTech
}

func (e *UnsupportedCombinationError) Error() string {
	if _, ok := frontendVariants[e.Presentation]; !ok {
		return fmt.Sprintf("unsupported presentation framework %q", e.Presentation)
	}
	return fmt.Sprintf("unsupported stack combination: %s service with %s database (supported: %s)", e.Service, e.Data, supportedList())
}

func supportedList() string {
	names := make([]string, 0, len(recipes))
	for p := range recipes {
		names = append(names, string(p.service)+"+"+string(p.data))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// NewNetworkName returns a random network identifier of the form net-<8 hex>.
func NewNetworkName() string {
	return "net-" + uuid.NewString()[:8]
}

// Synthesize renders the artifacts for profile. The profile must carry a
// known presentation framework, a supported (service, data) pairing, an entry
// file, and a port.
func Synthesize(l layout.RepoLayout, profile detect.StackProfile, opts Options) (ArtifactSet, error) {
	frontend, ok := frontendVariants[profile.Presentation]
	if !ok {
		return ArtifactSet{}, &UnsupportedCombinationError{Presentation: profile.Presentation, Service: profile.Service, Data: profile.Data}
	}
	r, ok := recipes[pair{profile.Service, profile.Data}]
	if !ok {
		return ArtifactSet{}, &UnsupportedCombinationError{Presentation: profile.Presentation, Service: profile.Service, Data: profile.Data}
	}
	if !profile.HasEntryFile() {
		return ArtifactSet{}, fmt.Errorf("synthesize: service entry file is not set")
	}
	servicePort, err := tcpPort(profile.Port)
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("synthesize: service port: %w", err)
	}
	dataPort, err := tcpPort(r.data.port)
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("synthesize: data port: %w", err)
	}
	proxyPort, err := tcpPort(opts.ProxyPort)
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("synthesize: proxy port: %w", err)
	}
	if opts.ProjectName == "" {
		return ArtifactSet{}, fmt.Errorf("synthesize: project name is required")
	}
	network := opts.Network
	if network == "" {
		network = NewNetworkName()
	}

	dirs := map[layout.Role]string{}
	for _, role := range layout.Roles {
		dirs[role] = l.Dir(role)
		if dirs[role] == "" {
			return ArtifactSet{}, fmt.Errorf("synthesize: no directory for %s tier", role)
		}
	}

	set := ArtifactSet{Network: network}
	add := func(rel string, content []byte) {
		set.Files = append(set.Files, Artifact{Path: rel, Content: content})
	}

	frontendSpec, err := render(frontendDockerfile, frontendData{APIEnv: frontend.apiEnv, APIPrefix: apiPrefix, OutputDir: frontend.outputDir})
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("render frontend build spec: %w", err)
	}
	add(path.Join(dirs[layout.Presentation], BuildSpecFile), frontendSpec)

	serviceTmpl := nodeDockerfile
	if r.service.runtime == detect.PythonFlask {
		serviceTmpl = pythonDockerfile
	}
	serviceSpec, err := render(serviceTmpl, serviceData{Port: servicePort.Int(), EntryFile: profile.EntryFile, SystemPackages: r.service.systemPackages})
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("render service build spec: %w", err)
	}
	add(path.Join(dirs[layout.Service], BuildSpecFile), serviceSpec)

	dataSpec, err := render(dataDockerfile, dataData{Image: r.data.image, InitDir: r.data.initDir, Port: dataPort.Int()})
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("render data build spec: %w", err)
	}
	add(path.Join(dirs[layout.Data], BuildSpecFile), dataSpec)

	project := buildProject(opts.ProjectName, network, dirs, r.data, servicePort.Int(), proxyPort.Int())
	descriptor, err := project.MarshalYAML()
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("marshal descriptor: %w", err)
	}
	set.Project = project
	add(DescriptorFile, descriptor)

	proxyConf, err := render(nginxConf, nginxData{APIPrefix: apiPrefix, Upstream: BackendService, Port: servicePort.Int()})
	if err != nil {
		return ArtifactSet{}, fmt.Errorf("render proxy config: %w", err)
	}
	add(ProxyConfigFile, proxyConf)

	ignore := []byte(excludes.Render())
	for _, role := range layout.Roles {
		add(path.Join(dirs[role], excludes.FileName), ignore)
	}
	return set, nil
}

func tcpPort(port int) (nat.Port, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("port %d out of range", port)
	}
	return nat.NewPort("tcp", strconv.Itoa(port))
}
