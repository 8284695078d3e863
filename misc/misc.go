// Package misc keeps program identification in one place.
package misc

import (
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
)

const appName = "bloomepub"

// Set with -ldflags "-X bloomepub/misc.version=... -X bloomepub/misc.gitHash=...".
var (
	version = ""
	gitHash = ""
)

var buildInfo = sync.OnceValue(func() (info struct{ version, hash string }) {
	info.version, info.hash = version, gitHash
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if len(info.version) == 0 && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	if len(info.hash) == 0 {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.hash = s.Value
				if len(info.hash) > 12 {
					info.hash = info.hash[:12]
				}
				break
			}
		}
	}
	return
})

// GetAppName returns the program name, used for temporary files and logger names.
func GetAppName() string {
	return appName
}

// GetVersion returns version of the program.
func GetVersion() string {
	if v := buildInfo().version; len(v) > 0 {
		return v
	}
	return "dev"
}

// GetGitHash returns short commit hash the program was built from.
func GetGitHash() string {
	if h := buildInfo().hash; len(h) > 0 {
		return h
	}
	return "unknown"
}

// TempPattern returns pattern for os.MkdirTemp/os.CreateTemp named after the program.
func TempPattern(suffix string) string {
	return filepath.Base(appName) + "-" + suffix
}
