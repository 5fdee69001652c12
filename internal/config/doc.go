// Package config provides the run configuration of debscraper: defaults,
// validation, the .debscraper YAML file and XDG directories.
package config
