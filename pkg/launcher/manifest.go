package launcher

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Platform identifies the operating system and architecture a backend
// binary was built for.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Triple returns the target triple used by bundlers to qualify sidecar
// binary names (e.g. x86_64-pc-windows-msvc).
func (p Platform) Triple() string {
	arch := p.Arch
	switch p.Arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}

	switch p.OS {
	case "windows":
		return arch + "-pc-windows-msvc"
	case "darwin":
		return arch + "-apple-darwin"
	case "linux":
		return arch + "-unknown-linux-gnu"
	default:
		return arch + "-unknown-" + p.OS
	}
}

// Expand substitutes ${os}, ${arch} and ${triple} in a file name.
func (p Platform) Expand(name string) string {
	return strings.NewReplacer(
		"${os}", p.OS,
		"${arch}", p.Arch,
		"${triple}", p.Triple(),
	).Replace(name)
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// PlatformArtifacts lists the files a backend ships for one platform.
type PlatformArtifacts struct {
	// Executable file names, in preference order
	Executables []string `yaml:"executables"`

	// Files that must sit next to the executable for it to be usable
	Siblings []string `yaml:"siblings"`
}

// BackendDescriptor declares where a backend's executable may live and what
// it needs alongside it. Descriptors are immutable once loaded.
type BackendDescriptor struct {
	// Logical name (e.g., "text-generation", "speech-synthesis")
	Name string `yaml:"name"`

	// Base directories relative to each anchor ancestor, in priority order
	SearchDirs []string `yaml:"search_dirs"`

	// Per-OS artifacts; the "default" key applies when the OS has no entry
	Platforms map[string]PlatformArtifacts `yaml:"platforms"`

	// Auxiliary model components keyed by the flag that receives them
	Auxiliary map[string]string `yaml:"auxiliary"`

	// Optional: Description of the backend
	Description string `yaml:"description"`
}

// Validate checks if the descriptor is usable
func (d *BackendDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(d.SearchDirs) == 0 {
		return fmt.Errorf("search_dirs is required")
	}

	for _, dir := range d.SearchDirs {
		if filepath.IsAbs(dir) {
			return fmt.Errorf("search_dirs entry must be relative: %s", dir)
		}
	}

	if len(d.Platforms) == 0 {
		return fmt.Errorf("platforms is required")
	}

	for key, artifacts := range d.Platforms {
		if len(artifacts.Executables) == 0 {
			return fmt.Errorf("platforms.%s.executables is required", key)
		}
	}

	return nil
}

// ArtifactsFor returns the artifacts for a platform with placeholders
// expanded. The boolean is false if the descriptor has nothing for it.
func (d *BackendDescriptor) ArtifactsFor(p Platform) (PlatformArtifacts, bool) {
	artifacts, ok := d.Platforms[p.OS]
	if !ok {
		artifacts, ok = d.Platforms["default"]
	}
	if !ok {
		return PlatformArtifacts{}, false
	}

	expanded := PlatformArtifacts{
		Executables: make([]string, 0, len(artifacts.Executables)),
		Siblings:    make([]string, 0, len(artifacts.Siblings)),
	}
	for _, name := range artifacts.Executables {
		expanded.Executables = append(expanded.Executables, p.Expand(name))
	}
	for _, name := range artifacts.Siblings {
		expanded.Siblings = append(expanded.Siblings, p.Expand(name))
	}
	return expanded, true
}

// AuxiliaryFlags returns the auxiliary flag names in sorted order.
func (d *BackendDescriptor) AuxiliaryFlags() []string {
	flags := make([]string, 0, len(d.Auxiliary))
	for flag := range d.Auxiliary {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	return flags
}

// Catalog is a named set of backend descriptors.
type Catalog struct {
	Backends []*BackendDescriptor `yaml:"backends"`

	byName map[string]*BackendDescriptor
}

// NewCatalog builds a catalog from descriptors, validating each.
func NewCatalog(descriptors ...*BackendDescriptor) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*BackendDescriptor)}
	for _, d := range descriptors {
		if err := c.add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseCatalog parses a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Backends []*BackendDescriptor `yaml:"backends"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(doc.Backends...)
}

// LoadCatalog loads a YAML catalog file.
func LoadCatalog(fs afero.Fs, path string) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

func (c *Catalog) add(d *BackendDescriptor) error {
	if d == nil {
		return ErrInvalidDescriptor("", fmt.Errorf("nil descriptor"))
	}
	if err := d.Validate(); err != nil {
		return ErrInvalidDescriptor(d.Name, err)
	}

	if _, exists := c.byName[d.Name]; exists {
		for i, existing := range c.Backends {
			if existing.Name == d.Name {
				c.Backends[i] = d
			}
		}
	} else {
		c.Backends = append(c.Backends, d)
	}
	c.byName[d.Name] = d
	return nil
}

// Get returns a descriptor by name
func (c *Catalog) Get(name string) (*BackendDescriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Names returns all descriptor names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new catalog where descriptors from other replace those
// with the same name.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	merged := &Catalog{byName: make(map[string]*BackendDescriptor)}
	for _, d := range c.Backends {
		_ = merged.add(d)
	}
	if other != nil {
		for _, d := range other.Backends {
			_ = merged.add(d)
		}
	}
	return merged
}
