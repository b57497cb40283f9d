package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the classifier keywords are applied live; every
// other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	KeywordsChanged bool

	// RestartRequired names the top-level sections that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Changed reports whether d describes any difference.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.KeywordsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Classifier, new.Classifier
	if oc.Replace != nc.Replace ||
		!slices.Equal(oc.Keywords.Affirmative, nc.Keywords.Affirmative) ||
		!slices.Equal(oc.Keywords.Negative, nc.Keywords.Negative) ||
		!slices.Equal(oc.Keywords.Repeat, nc.Keywords.Repeat) {
		d.KeywordsChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Store, new.Store) {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}
