package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/repodeploy/internal/admission"
	"github.com/example/repodeploy/internal/detect"
	"github.com/example/repodeploy/internal/engine"
	"github.com/example/repodeploy/internal/layout"
	"github.com/example/repodeploy/internal/probe"
	"github.com/example/repodeploy/internal/synth"
	"github.com/example/repodeploy/internal/workspace"
)

// FailureKind names the terminal error category of a failed run.
type FailureKind string

const (
	KindNone                   FailureKind = ""
	KindInvalidURL             FailureKind = "InvalidUrl"
	KindUnsafeURL              FailureKind = "UnsafeUrl"
	KindFetch                  FailureKind = "FetchError"
	KindStructure              FailureKind = "StructureError"
	KindDetectionUnknown       FailureKind = "DetectionUnknown"
	KindEntryFileNotFound      FailureKind = "EntryFileNotFound"
	KindPortNotFound           FailureKind = "PortNotFound"
	KindUnsupportedCombination FailureKind = "UnsupportedCombination"
	KindBuildDeploy            FailureKind = "BuildDeploy"
	KindBuildTimeout           FailureKind = "BuildTimeout"
	KindReadinessTimeout       FailureKind = "ReadinessTimeout"
	KindCanceled               FailureKind = "Canceled"
	KindInternal               FailureKind = "Internal"
)

// DetectionUnknownError reports a tier whose technology could not be
// classified.
type DetectionUnknownError struct {
	Tier layout.Role
}

func (e *DetectionUnknownError) Error() string {
	return fmt.Sprintf("could not detect the %s tier technology", e.Tier)
}

// EntryFileNotFoundError reports a service tier whose runtime was identified
// but whose entry point was not.
type EntryFileNotFoundError struct {
	Service detect.ServiceTech
}

func (e *EntryFileNotFoundError) Error() string {
	return fmt.Sprintf("no entry file found for the %s service", e.Service)
}

// PortNotFoundError reports a service with no discoverable listening port.
type PortNotFoundError struct {
	EntryFile string
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("no service port found in .env or %s", e.EntryFile)
}

// Classify maps a terminal run error onto its FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	var (
		invalidURL  *admission.InvalidURLError
		unsafeURL   *admission.UnsafeURLError
		fetchErr    *workspace.FetchError
		structure   *layout.StructureError
		unknown     *DetectionUnknownError
		noEntry     *EntryFileNotFoundError
		noPort      *PortNotFoundError
		unsupported *synth.UnsupportedCombinationError
		buildTime   *engine.BuildTimeoutError
		buildDeploy *engine.BuildDeployError
		readiness   *probe.ReadinessTimeoutError
	)
	switch {
	case errors.As(err, &invalidURL):
		return KindInvalidURL
	case errors.As(err, &unsafeURL):
		return KindUnsafeURL
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &structure):
		return KindStructure
	case errors.As(err, &unknown):
		return KindDetectionUnknown
	case errors.As(err, &noEntry):
		return KindEntryFileNotFound
	case errors.As(err, &noPort):
		return KindPortNotFound
	case errors.As(err, &unsupported):
		return KindUnsupportedCombination
	case errors.As(err, &buildTime):
		return KindBuildTimeout
	case errors.As(err, &buildDeploy):
		return KindBuildDeploy
	case errors.As(err, &readiness):
		return KindReadinessTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Hint returns an operator-facing suggestion for err, or "".
func Hint(err error) string {
	var buildDeploy *engine.BuildDeployError
	if errors.As(err, &buildDeploy) {
		return buildDeploy.Outcome.Kind.Hint()
	}
	switch Classify(err) {
	case KindStructure:
		return "the repository needs separate frontend, backend, and database directories"
	case KindUnsupportedCombination:
		return "supported backends are node and python-flask with mysql, postgres, mongodb, or redis"
	case KindBuildTimeout:
		return "raise --build-timeout if the images need longer to build"
	case KindReadinessTimeout:
		return "the stack started but never answered; inspect it with `docker compose logs`"
	case KindPortNotFound:
		return "declare PORT=<n> in the backend .env file"
	}
	return ""
}

// RequireComplete turns the unknown fields of profile into typed errors, in
// tier order.
func RequireComplete(profile detect.StackProfile) error {
	switch {
	case !profile.Presentation.Known():
		return &DetectionUnknownError{Tier: layout.Presentation}
	case !profile.Service.Known():
		return &DetectionUnknownError{Tier: layout.Service}
	case !profile.HasEntryFile():
		return &EntryFileNotFoundError{Service: profile.Service}
	case !profile.HasPort():
		return &PortNotFoundError{EntryFile: profile.EntryFile}
	case !profile.Data.Known():
		return &DetectionUnknownError{Tier: layout.Data}
	}
	return nil
}
