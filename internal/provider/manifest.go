package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

// ManifestFile is the file name looked up inside each package directory.
const ManifestFile = "manifest.yaml"

// manifest is the on-disk description of one installed package. The
// optional package field must equal the directory name.
//
// Example:
//
//	package: com.example
//	activities:
//	  - class: .MainActivity
//	    label: Example
//	    icon: icons/main.png
//	    launcher: true
type manifest struct {
	Package    string             `yaml:"package"`
	Activities []manifestActivity `yaml:"activities"`
}

type manifestActivity struct {
	Class    string `yaml:"class"`
	Label    string `yaml:"label"`
	Icon     string `yaml:"icon"`
	Launcher bool   `yaml:"launcher"`
}

// ManifestProvider reads installed packages from a directory tree in which
// every sub-directory is one package holding a manifest.yaml.
type ManifestProvider struct {
	root   string
	logger *zap.Logger
}

// NewManifestProvider returns a provider rooted at dir.
func NewManifestProvider(dir string, logger *zap.Logger) *ManifestProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestProvider{root: dir, logger: logger}
}

// Root returns the directory the provider reads from.
func (p *ManifestProvider) Root() string {
	return p.root
}

// PackageDir returns the directory that holds pkg's manifest.
func (p *ManifestProvider) PackageDir(pkg string) string {
	return filepath.Join(p.root, pkg)
}

// QueryLiveEntries implements Provider.
func (p *ManifestProvider) QueryLiveEntries(ctx context.Context, pkg string) ([]LiveEntry, error) {
	if pkg != "" {
		return p.readPackage(pkg)
	}

	dirs, err := os.ReadDir(p.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest root %s: %w", p.root, err)
	}

	names := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)

	var entries []LiveEntry
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkgEntries, err := p.readPackage(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pkgEntries...)
	}
	return entries, nil
}

// readPackage parses the manifest in the directory named pkg. A missing
// directory or manifest means the package is not installed.
func (p *ManifestProvider) readPackage(pkg string) ([]LiveEntry, error) {
	dir := p.PackageDir(pkg)
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", pkg, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", pkg, err)
	}

	// Events and per-package queries are keyed by directory name, so a
	// manifest declaring some other package could never be reconciled.
	if declared := strings.TrimSpace(m.Package); declared != "" && declared != pkg {
		p.logger.Warn("skipping manifest whose package does not match its directory",
			zap.String("dir", dir),
			zap.String("package", declared))
		return nil, nil
	}

	entries := make([]LiveEntry, 0, len(m.Activities))
	for _, act := range m.Activities {
		if !act.Launcher {
			continue
		}

		key, err := identity.New(pkg, act.Class)
		if err != nil {
			p.logger.Warn("skipping malformed activity",
				zap.String("package", pkg),
				zap.String("class", act.Class),
				zap.Error(err))
			continue
		}

		entry := LiveEntry{Identity: key, Title: strings.TrimSpace(act.Label)}
		if act.Icon != "" {
			iconPath := act.Icon
			if !filepath.IsAbs(iconPath) {
				iconPath = filepath.Join(dir, iconPath)
			}
			entry.Icon = FileIcon(iconPath)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
