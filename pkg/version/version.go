// Package version records the engine build version.
package version

// Version is overridden at release build time via
// -ldflags "-X github.com/docker/local-rag-engine/pkg/version.Version=...".
var Version = "dev"
