// Package backends holds the built-in backend descriptors and the fixed
// command-line surfaces of the text-generation and speech backends.
package backends

import (
	_ "embed"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
)

// Backend names
const (
	TextGeneration  = "text-generation"
	SpeechSynthesis = "speech-synthesis"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// DefaultCatalog returns the built-in descriptors.
func DefaultCatalog() *launcher.Catalog {
	catalog, err := launcher.ParseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in backend catalog is invalid: %v", err))
	}
	return catalog
}

// LoadCatalog returns the built-in descriptors overridden by the catalog
// file at path. An empty path yields the built-ins.
func LoadCatalog(fs afero.Fs, path string) (*launcher.Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	override, err := launcher.LoadCatalog(fs, path)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(override), nil
}

// Lookup returns a named descriptor or an INVALID_DESCRIPTOR error.
func Lookup(catalog *launcher.Catalog, name string) (*launcher.BackendDescriptor, error) {
	desc, ok := catalog.Get(name)
	if !ok {
		return nil, launcher.ErrInvalidDescriptor(name, fmt.Errorf("backend not in catalog"))
	}
	return desc, nil
}

// Fixed serving parameters of the text-generation server.
const (
	ServerContextSize   = 4096
	ServerPort          = 8081
	ServerHost          = "127.0.0.1"
	ServerMaxTokens     = 256
	ServerTemperature   = "0.7"
	ServerTopP          = "0.9"
	ServerTopK          = 40
	ServerRepeatPenalty = "1.1"
)

// ServerArgs builds the text-generation server's argument list.
func ServerArgs(modelPath string) []string {
	return []string{
		"-m", modelPath,
		"--ctx-size", strconv.Itoa(ServerContextSize),
		"--port", strconv.Itoa(ServerPort),
		"--host", ServerHost,
		"--n-predict", strconv.Itoa(ServerMaxTokens),
		"--temp", ServerTemperature,
		"--top-p", ServerTopP,
		"--top-k", strconv.Itoa(ServerTopK),
		"--repeat-penalty", ServerRepeatPenalty,
	}
}

// ServerAddress is where the text-generation server listens.
func ServerAddress() string {
	return net.JoinHostPort(ServerHost, strconv.Itoa(ServerPort))
}

// SpeechFlags are the flag names of the speech backend.
const (
	FlagText      = "--text"
	FlagOutput    = "--output"
	FlagModel     = "--model_gguf"
	FlagSeed      = "--seed"
	FlagReference = "--ref_wav"
)

// SpeechInput is one speech-synthesis call.
type SpeechInput struct {
	Text       string
	OutputPath string
	ModelPath  string

	// Auxiliary component paths keyed by flag
	Auxiliary map[string]string

	// Optional
	Seed         *int
	ReferenceWAV string
}

// AuxiliaryPaths resolves the descriptor's auxiliary components against
// the primary model's directory.
func AuxiliaryPaths(desc *launcher.BackendDescriptor, modelPath string) map[string]string {
	dir := filepath.Dir(modelPath)
	paths := make(map[string]string, len(desc.Auxiliary))
	for flag, name := range desc.Auxiliary {
		if filepath.IsAbs(name) {
			paths[flag] = name
			continue
		}
		paths[flag] = filepath.Join(dir, name)
	}
	return paths
}

// SpeechArgs builds the speech backend's argument list. Auxiliary flags
// follow the primary model in sorted order.
func SpeechArgs(in SpeechInput) []string {
	args := []string{
		FlagText, in.Text,
		FlagOutput, in.OutputPath,
		FlagModel, in.ModelPath,
	}

	flags := make([]string, 0, len(in.Auxiliary))
	for flag := range in.Auxiliary {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	for _, flag := range flags {
		args = append(args, flag, in.Auxiliary[flag])
	}

	if in.Seed != nil {
		args = append(args, FlagSeed, strconv.Itoa(*in.Seed))
	}
	if in.ReferenceWAV != "" {
		args = append(args, FlagReference, in.ReferenceWAV)
	}
	return args
}

// RequiredArtifacts lists the input files the speech backend reads: the
// model, its auxiliary components and the reference voice when set.
func (in SpeechInput) RequiredArtifacts() []string {
	files := []string{in.ModelPath}
	flags := make([]string, 0, len(in.Auxiliary))
	for flag := range in.Auxiliary {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	for _, flag := range flags {
		files = append(files, in.Auxiliary[flag])
	}
	if in.ReferenceWAV != "" {
		files = append(files, in.ReferenceWAV)
	}
	return files
}
