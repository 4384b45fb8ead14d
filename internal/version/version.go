// Package version holds build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	-ldflags "-X github.com/longkey1/webchat/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func resolved() (string, string) {
	v, c := Version, Commit
	if v != "dev" {
		return v, c
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && c == "none" {
				c = s.Value
			}
		}
	}
	return v, c
}

// Short returns the version number only.
func Short() string {
	v, _ := resolved()
	return v
}

// Info returns a multi-line description of the build.
func Info() string {
	v, c := resolved()
	if len(c) > 12 {
		c = c[:12]
	}
	return fmt.Sprintf("Version:    %s\nCommit:     %s\nBuild time: %s\nGo version: %s\nPlatform:   %s/%s",
		v, c, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
