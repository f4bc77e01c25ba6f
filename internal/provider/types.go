package provider

import (
	"context"
	"io"
	"os"

	"github.com/blackwell-systems/appregistry/internal/identity"
	"github.com/blackwell-systems/appregistry/internal/icon"
)

// LiveEntry is an application entry point as currently reported by the
// package-information provider. It is never stored directly.
type LiveEntry struct {
	Identity identity.Key
	Title    string
	Icon     icon.Source // nil when the provider reported no icon
}

// Provider reports the live set of launchable entry points.
//
// QueryLiveEntries returns the MAIN/LAUNCHER entries of pkg, or of every
// installed package when pkg is empty. An uninstalled package yields an
// empty result, not an error.
type Provider interface {
	QueryLiveEntries(ctx context.Context, pkg string) ([]LiveEntry, error)
}

// FileIcon is an icon Source backed by an image file on disk.
type FileIcon string

// Open implements icon.Source.
func (f FileIcon) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}
