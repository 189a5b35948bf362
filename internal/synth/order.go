package synth

import (
	"fmt"
	"sort"

	"github.com/compose-spec/compose-go/v2/types"
)

// StartupOrder returns the project's services in dependency order. Among the
// services whose dependencies are all satisfied, the alphabetically first
// starts next.
func StartupOrder(project *types.Project) ([]string, error) {
	if project == nil {
		return nil, nil
	}
	dependents, pending := dependencyGraph(project.Services)

	ready := make([]string, 0, len(pending))
	for name, count := range pending {
		if count == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(pending))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
	}
	if len(order) != len(pending) {
		return nil, fmt.Errorf("services have a dependency cycle (%d of %d ordered)", len(order), len(pending))
	}
	return order, nil
}

func dependencyGraph(services types.Services) (map[string][]string, map[string]int) {
	dependents := make(map[string][]string, len(services))
	pending := make(map[string]int, len(services))
	for name, svc := range services {
		count := 0
		for dep := range svc.DependsOn {
			if _, ok := services[dep]; !ok {
				continue
			}
			count++
			dependents[dep] = append(dependents[dep], name)
		}
		pending[name] = count
	}
	return dependents, pending
}
