package godf

import (
	"fmt"
	"runtime/debug"
)

const modulePath = "github.com/gqcx/godf"

// Version returns the module version and checksum. The returned values
// are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	if b.Main.Path == modulePath {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != modulePath {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "":
				return fmt.Sprintf("%s (replaced by %s)", m.Version, m.Replace.Version), m.Replace.Sum
			case m.Replace.Path != "":
				return fmt.Sprintf("%s (replaced by %s)", m.Version, m.Replace.Path), m.Replace.Sum
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
