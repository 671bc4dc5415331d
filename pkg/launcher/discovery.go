package launcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ResolvedExecutable is a verified backend executable.
type ResolvedExecutable struct {
	// Backend is the descriptor name this executable was resolved for
	Backend string

	// Path is the absolute path to the executable
	Path string

	// Dir is the executable's directory, used as the working directory
	Dir string
}

// Candidate is one location the locator tests for an executable.
type Candidate struct {
	Path     string
	Siblings []string
}

// Ancestors returns dir followed by each of its parents up to the
// filesystem root, closest first.
func Ancestors(dir string) []string {
	dir = filepath.Clean(dir)
	var out []string
	for {
		out = append(out, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// SearchPaths lists every candidate location for a descriptor, in the order
// the locator tests them: root and each of its ancestors (closest first),
// then each search dir in priority order, then each executable name.
func SearchPaths(root string, desc *BackendDescriptor, platform Platform) []Candidate {
	artifacts, ok := desc.ArtifactsFor(platform)
	if !ok {
		return nil
	}

	var candidates []Candidate
	for _, ancestor := range Ancestors(root) {
		for _, searchDir := range desc.SearchDirs {
			base := filepath.Join(ancestor, filepath.FromSlash(searchDir))
			for _, exe := range artifacts.Executables {
				c := Candidate{Path: filepath.Join(base, exe)}
				for _, sibling := range artifacts.Siblings {
					c.Siblings = append(c.Siblings, filepath.Join(base, sibling))
				}
				candidates = append(candidates, c)
			}
		}
	}
	return candidates
}

// Locator finds backend executables relative to an anchor path.
type Locator struct {
	fs       afero.Fs
	anchor   string
	platform Platform
	logger   *slog.Logger
}

// LocatorOption configures a Locator
type LocatorOption func(*Locator)

// WithFs sets the filesystem used for existence checks
func WithFs(fs afero.Fs) LocatorOption {
	return func(l *Locator) {
		l.fs = fs
	}
}

// WithAnchor overrides the anchor (defaults to the running executable).
// A directory anchor is searched itself; a file anchor from its directory.
func WithAnchor(anchor string) LocatorOption {
	return func(l *Locator) {
		l.anchor = anchor
	}
}

// WithPlatform overrides the target platform
func WithPlatform(p Platform) LocatorOption {
	return func(l *Locator) {
		l.platform = p
	}
}

// WithLocatorLogger sets the logger
func WithLocatorLogger(logger *slog.Logger) LocatorOption {
	return func(l *Locator) {
		l.logger = logger
	}
}

// NewLocator creates a locator. Without WithAnchor the anchor is the
// running executable with symlinks evaluated.
func NewLocator(opts ...LocatorOption) (*Locator, error) {
	l := &Locator{
		fs:       afero.NewOsFs(),
		platform: CurrentPlatform(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.anchor == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("determine running executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		l.anchor = exe
	}

	abs, err := filepath.Abs(l.anchor)
	if err != nil {
		return nil, fmt.Errorf("resolve anchor %s: %w", l.anchor, err)
	}
	l.anchor = abs

	return l, nil
}

// Anchor returns the configured anchor path
func (l *Locator) Anchor() string {
	return l.anchor
}

// Root returns the directory searches start from: the anchor itself when
// it is a directory, otherwise the anchor's parent.
func (l *Locator) Root() string {
	if info, err := l.fs.Stat(l.anchor); err == nil && info.IsDir() {
		return l.anchor
	}
	return filepath.Dir(l.anchor)
}

// Resolve returns the first candidate whose executable and siblings all
// exist. On failure the error lists every path that was checked.
func (l *Locator) Resolve(desc *BackendDescriptor) (*ResolvedExecutable, error) {
	if desc == nil {
		return nil, ErrInvalidDescriptor("", fmt.Errorf("nil descriptor"))
	}
	if _, ok := desc.ArtifactsFor(l.platform); !ok {
		return nil, ErrInvalidDescriptor(desc.Name,
			fmt.Errorf("no executables declared for platform %s", l.platform))
	}

	var checked []string
	for _, c := range SearchPaths(l.Root(), desc, l.platform) {
		checked = append(checked, c.Path)
		if !l.isFile(c.Path) {
			continue
		}

		missing := ""
		for _, sibling := range c.Siblings {
			checked = append(checked, sibling)
			if !l.isFile(sibling) {
				missing = sibling
				break
			}
		}
		if missing != "" {
			l.logger.Debug("rejecting executable with missing sibling",
				"backend", desc.Name, "executable", c.Path, "missing", missing)
			continue
		}

		l.logger.Debug("resolved backend executable",
			"backend", desc.Name, "executable", c.Path, "checked", len(checked))
		return &ResolvedExecutable{
			Backend: desc.Name,
			Path:    c.Path,
			Dir:     filepath.Dir(c.Path),
		}, nil
	}

	return nil, ErrResolutionFailed(desc.Name, checked)
}

func (l *Locator) isFile(path string) bool {
	info, err := l.fs.Stat(path)
	return err == nil && !info.IsDir()
}
