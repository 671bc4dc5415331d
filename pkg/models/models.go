// Package models locates and lists the GGUF model files the backends load.
//
// The models directory holds two kinds of files side by side: text-generation
// models, and the speech-synthesis components (prefixes "ve_", "t3_" and
// "s3gen"). Listings keep them apart.
package models

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
)

const (
	// Extension identifies model files
	Extension = ".gguf"

	// DefaultModelName is preferred when auto-starting
	DefaultModelName = "LFM-1.2B-INT8.gguf"

	// EnvModelPath overrides the models directory. A file path selects its
	// parent directory.
	EnvModelPath = "GENHAT_MODEL_PATH"

	// SpeechAssetPrefix marks the selectable primary speech model
	SpeechAssetPrefix = "s3gen"
)

var speechComponentPrefixes = []string{"ve_", "t3_", SpeechAssetPrefix}

// Model is one model file.
type Model struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// DefaultDir is the models directory used when nothing else is configured.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "GenHat", "models")
	}
	return filepath.Join(home, "GenHat", "models")
}

// ResolveDir picks the models directory. override is the GENHAT_MODEL_PATH
// value: an existing file selects its parent and an existing directory is
// used as-is. Anything else falls through to configured, then DefaultDir.
func ResolveDir(fs afero.Fs, override, configured string) string {
	if override != "" {
		if info, err := fs.Stat(override); err == nil {
			if info.IsDir() {
				return override
			}
			return filepath.Dir(override)
		}
	}
	if configured != "" {
		return configured
	}
	return DefaultDir()
}

// IsModelFile reports whether name carries the model extension.
func IsModelFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// IsSpeechComponent reports whether a file belongs to the speech backend.
func IsSpeechComponent(name string) bool {
	base := filepath.Base(name)
	for _, prefix := range speechComponentPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// IsSpeechAsset reports whether a file is a primary speech model.
func IsSpeechAsset(name string) bool {
	return strings.HasPrefix(filepath.Base(name), SpeechAssetPrefix)
}

// Library reads one models directory.
type Library struct {
	fs  afero.Fs
	dir string
}

// NewLibrary creates a Library over dir.
func NewLibrary(fs afero.Fs, dir string) *Library {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Library{fs: fs, dir: dir}
}

// Dir returns the models directory.
func (l *Library) Dir() string {
	return l.dir
}

// List returns the text-generation models sorted by name. A missing
// directory lists as empty.
func (l *Library) List() ([]Model, error) {
	return l.scan(func(name string) bool { return !IsSpeechComponent(name) })
}

// SpeechAssets returns the primary speech models sorted by name.
func (l *Library) SpeechAssets() ([]Model, error) {
	return l.scan(IsSpeechAsset)
}

// Default picks the model to auto-start: DefaultModelName if present,
// otherwise the first listed model.
func (l *Library) Default() (Model, error) {
	models, err := l.List()
	if err != nil {
		return Model{}, err
	}
	if len(models) == 0 {
		return Model{}, launcher.ErrNoModelsFound(l.dir)
	}
	for _, m := range models {
		if m.Name == DefaultModelName {
			return m, nil
		}
	}
	return models[0], nil
}

// SpeechAsset returns the speech model to use. An explicit path wins;
// otherwise the first listed asset is chosen.
func (l *Library) SpeechAsset(path string) (Model, error) {
	if path != "" {
		return Model{Name: filepath.Base(path), Path: path}, nil
	}

	assets, err := l.SpeechAssets()
	if err != nil {
		return Model{}, err
	}
	if len(assets) == 0 {
		return Model{}, launcher.ErrNoModelsFound(l.dir).
			WithContext("kind", "speech").
			WithSuggestion("Place an " + SpeechAssetPrefix + "*" + Extension + " model in " + l.dir)
	}
	return assets[0], nil
}

func (l *Library) scan(keep func(name string) bool) ([]Model, error) {
	entries, err := afero.ReadDir(l.fs, l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Model{}, nil
		}
		return nil, err
	}

	models := make([]Model, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsModelFile(entry.Name()) || !keep(entry.Name()) {
			continue
		}
		models = append(models, Model{
			Name: entry.Name(),
			Path: filepath.Join(l.dir, entry.Name()),
		})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}
