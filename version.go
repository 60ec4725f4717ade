// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package gateway

import (
	"runtime"
	"time"
)

// Set at link time.
var (
	Version   string
	Commit    string
	BuildTime string
)

var GoVersion string = runtime.Version()

func VersionInfo() string {
	suffix := " " + Version
	if Version == "" {
		suffix = " dev"
	}
	buildTime := BuildTime
	if buildTime != "" {
		// Normalize the build time into a friendly format in the user's time zone.
		if t, err := time.Parse("2006-01-02T15:04:05+0000", BuildTime); err == nil {
			buildTime = t.Local().Format("Jan _2 2006 3:04PM")
		}
	}
	switch {
	case Commit != "" && buildTime != "":
		suffix += " (" + buildTime + ", " + Commit + ")"
	case Commit != "":
		suffix += " (" + Commit + ")"
	case buildTime != "":
		suffix += " (" + buildTime + ")"
	}
	return "SQL Gateway" + suffix + " " + GoVersion
}
