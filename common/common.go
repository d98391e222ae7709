// Package common holds identifiers shared across the secure-reveal-lab binaries.
package common

// PackageName is used as the metrics namespace and in user agent strings.
const PackageName = "secure-reveal-lab"

// Version is overridden at build time via -ldflags.
var Version = "dev"
