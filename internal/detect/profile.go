// Package detect classifies the technologies used by each tier of a resolved
// repository layout. Detectors report "unknown" as a value; only filesystem
// faults come back as errors.
package detect

// PresentationTech is the UI framework of the presentation tier.
type PresentationTech string

const (
	PresentationUnknown PresentationTech = "unknown"
	ReactPlain          PresentationTech = "react"
	ReactVite           PresentationTech = "react-vite"
	Vue                 PresentationTech = "vue"
	Angular             PresentationTech = "angular"
)

// Known reports whether t is a supported framework.
func (t PresentationTech) Known() bool {
	switch t {
	case ReactPlain, ReactVite, Vue, Angular:
		return true
	}
	return false
}

// ServiceTech is the runtime/framework of the service tier.
type ServiceTech string

const (
	ServiceUnknown ServiceTech = "unknown"
	Node           ServiceTech = "node"
	PythonFlask    ServiceTech = "python-flask"
)

func (t ServiceTech) Known() bool {
	switch t {
	case Node, PythonFlask:
		return true
	}
	return false
}

// DataTech is the engine of the data tier.
type DataTech string

const (
	DataUnknown DataTech = "unknown"
	MySQL       DataTech = "mysql"
	Postgres    DataTech = "postgres"
	MongoDB     DataTech = "mongodb"
	Redis       DataTech = "redis"
	SQLite      DataTech = "sqlite"
)

func (t DataTech) Known() bool {
	switch t {
	case MySQL, Postgres, MongoDB, Redis, SQLite:
		return true
	}
	return false
}

// PortNotFound is the sentinel port value reported when no source declares one.
const PortNotFound = 0

// StackProfile is the resolved classification of a repository.
type StackProfile struct {
	Presentation PresentationTech `json:"presentation"`
	Service      ServiceTech      `json:"service"`
	// EntryFile is relative to the service tier; empty when the runtime was
	// identified but no entry point was.
	EntryFile string   `json:"entryFile,omitempty"`
	Port      int      `json:"port"`
	Data      DataTech `json:"data"`
}

// HasEntryFile reports whether an entry point was found.
func (p StackProfile) HasEntryFile() bool {
	return p.EntryFile != ""
}

// HasPort reports whether a service port was found.
func (p StackProfile) HasPort() bool {
	return p.Port != PortNotFound
}
