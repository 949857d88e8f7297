package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build context of an eventmsg binary.
//
// It encapsulates a bunch of information that's included at build time
// by the Go linker. See the vars below for more information
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags.
	//
	// * https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	version := Version
	if version == "" {
		version = "dev"
	}

	return Info{
		GoVersion: runtime.Version(),
		Version:   version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

func (i Info) String() string {
	s := i.Version
	if i.Build != "" {
		s += " (" + i.Build + ")"
	}

	return fmt.Sprintf("%s %s %s", s, i.Platform, i.GoVersion)
}
