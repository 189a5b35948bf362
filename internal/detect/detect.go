package detect

import (
	"fmt"

	"github.com/example/repodeploy/internal/layout"
)

// Detect builds the StackProfile for a resolved layout. Unknown
// classifications are returned in the profile; the error is reserved for
// read failures, which abort the run.
func Detect(l layout.RepoLayout) (StackProfile, error) {
	profile := StackProfile{
		Presentation: PresentationUnknown,
		Service:      ServiceUnknown,
		Data:         DataUnknown,
		Port:         PortNotFound,
	}
	presentationDir := l.Path(layout.Presentation)
	serviceDir := l.Path(layout.Service)
	dataDir := l.Path(layout.Data)

	var err error
	if profile.Presentation, err = Presentation(presentationDir); err != nil {
		return profile, fmt.Errorf("detect presentation tier: %w", err)
	}
	if profile.Service, err = Service(serviceDir); err != nil {
		return profile, fmt.Errorf("detect service tier: %w", err)
	}
	if profile.EntryFile, err = EntryFile(serviceDir, profile.Service); err != nil {
		return profile, fmt.Errorf("detect service entry file: %w", err)
	}
	if profile.Service.Known() {
		if profile.Port, err = Port(serviceDir, profile.Service, profile.EntryFile); err != nil {
			return profile, fmt.Errorf("detect service port: %w", err)
		}
	}
	if profile.Data, err = Database(dataDir, serviceDir, profile.Service); err != nil {
		return profile, fmt.Errorf("detect data tier: %w", err)
	}
	return profile, nil
}
