package config

import "time"

// File represents the structure of the .debscraper configuration file.
//
//	seeds:
//	  - http://archive.ubuntu.com/ubuntu/pool/
//	prefix: ubuntu
//	downloadingConcurrency: 8
//	tools:
//	  symsorter: /usr/local/bin/symsorter
type File struct {
	Seeds                  []string      `yaml:"seeds,omitempty"`
	ScrapingConcurrency    int           `yaml:"scrapingConcurrency,omitempty"`
	DownloadingConcurrency int           `yaml:"downloadingConcurrency,omitempty"`
	Output                 string        `yaml:"output,omitempty"`
	Prefix                 string        `yaml:"prefix,omitempty"`
	BundleSuffix           string        `yaml:"bundleSuffix,omitempty"`
	Timeout                time.Duration `yaml:"timeout,omitempty"`
	UserAgent              string        `yaml:"userAgent,omitempty"`
	ProxyURL               string        `yaml:"proxy,omitempty"`
	RateLimit              float64       `yaml:"rateLimit,omitempty"`
	RateBurst              int           `yaml:"rateBurst,omitempty"`
	Tools                  Tools         `yaml:"tools,omitempty"`
	StrictSorter           bool          `yaml:"strictSorter,omitempty"`
	DBDir                  string        `yaml:"dbDir,omitempty"`
	MetricsAddr            string        `yaml:"metricsAddr,omitempty"`
}
