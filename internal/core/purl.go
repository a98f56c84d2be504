package core

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/purl"
	packageurl "github.com/package-url/packageurl-go"
)

// PURL returns the npm package URL for name at version. Scoped names keep
// their "@scope" as the namespace.
func PURL(name, version string) string {
	namespace, short := SplitScope(name)
	return packageurl.NewPackageURL(packageurl.TypeNPM, namespace, short, version, nil, "").ToString()
}

// ParsePURL returns the full npm name and version encoded in an npm package
// URL. Package URLs of other ecosystems are rejected.
func ParsePURL(s string) (name, version string, err error) {
	p, err := purl.Parse(s)
	if err != nil {
		return "", "", err
	}
	if p.Type != packageurl.TypeNPM {
		return "", "", fmt.Errorf("%s: not an npm package URL", s)
	}
	return p.FullName(), p.Version, nil
}

// SplitScope splits "@scope/name" into ("@scope", "name").
func SplitScope(name string) (scope, short string) {
	if strings.HasPrefix(name, "@") {
		if i := strings.Index(name, "/"); i > 0 {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}
