package database

import (
	"path/filepath"
)

// dataSourceName resolves the sqlite file path relative to the config
// directory, falling back to the working directory when unset.
func dataSourceName(configPath string, name string) string {
	if configPath == "" || configPath == "." {
		return name
	}
	return filepath.Join(configPath, name)
}
