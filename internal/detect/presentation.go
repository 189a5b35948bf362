package detect

import "path/filepath"

// Bundler config files that select the fast-bundler React variant.
var viteConfigs = []string{"vite.config.js", "vite.config.ts"}

const angularMarker = "angular.json"

// Presentation classifies the UI framework in dir. Checks run in a fixed
// order and the first match wins: react, then vue, then the angular marker.
func Presentation(dir string) (PresentationTech, error) {
	pkg, err := readManifest(dir)
	if err != nil {
		return PresentationUnknown, err
	}
	switch {
	case pkg.has("react"):
		for _, name := range viteConfigs {
			if fileExists(filepath.Join(dir, name)) {
				return ReactVite, nil
			}
		}
		return ReactPlain, nil
	case pkg.has("vue"):
		return Vue, nil
	case fileExists(filepath.Join(dir, angularMarker)):
		return Angular, nil
	}
	return PresentationUnknown, nil
}
