// Package speech turns text into a WAV file by running the speech-synthesis
// backend once per request.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genhat/genhat-core/pkg/backends"
	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/models"
	"github.com/google/uuid"
)

// ArtifactPrefix starts every generated WAV file name.
const ArtifactPrefix = "genhat-tts-"

// Resolver finds the speech backend executable.
type Resolver interface {
	Resolve(desc *launcher.BackendDescriptor) (*launcher.ResolvedExecutable, error)
}

// Runner runs a one-shot invocation.
type Runner interface {
	Run(ctx context.Context, inv launcher.Invocation) (*launcher.InvocationResult, error)
}

// Request is a synthesis request. Only Text is required.
type Request struct {
	Text string

	// Optional: primary speech model; defaults to the first listed asset
	ModelPath string

	// Optional: where to write the WAV; defaults to a unique temp file
	OutputPath string

	Seed         *int
	ReferenceWAV string
}

// Result is a finished synthesis.
type Result struct {
	ArtifactPath string
	Model        models.Model
	Duration     time.Duration
	Stdout       string
	Stderr       string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithOutputDir sets where generated WAV files are written.
func WithOutputDir(dir string) Option {
	return func(s *Synthesizer) {
		s.outputDir = dir
	}
}

// WithClock sets the time source used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// Synthesizer runs speech requests. It holds no per-request state.
type Synthesizer struct {
	descriptor *launcher.BackendDescriptor
	resolver   Resolver
	runner     Runner
	library    *models.Library

	outputDir string
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Synthesizer.
func New(desc *launcher.BackendDescriptor, resolver Resolver, runner Runner, library *models.Library, opts ...Option) (*Synthesizer, error) {
	switch {
	case desc == nil:
		return nil, launcher.ErrInvalidConfiguration("descriptor", nil, "speech requires a backend descriptor")
	case resolver == nil:
		return nil, launcher.ErrInvalidConfiguration("resolver", nil, "speech requires a resolver")
	case runner == nil:
		return nil, launcher.ErrInvalidConfiguration("runner", nil, "speech requires a runner")
	case library == nil:
		return nil, launcher.ErrInvalidConfiguration("library", nil, "speech requires a models library")
	}

	s := &Synthesizer{
		descriptor: desc,
		resolver:   resolver,
		runner:     runner,
		library:    library,
		outputDir:  os.TempDir(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Speak synthesizes req.Text and returns the WAV path.
func (s *Synthesizer) Speak(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, launcher.ErrInvalidConfiguration("text", req.Text, "text must not be empty")
	}

	model, err := s.library.SpeechAsset(req.ModelPath)
	if err != nil {
		return nil, err
	}

	exe, err := s.resolver.Resolve(s.descriptor)
	if err != nil {
		return nil, err
	}

	output := req.OutputPath
	if output == "" {
		output = OutputPath(s.outputDir, s.now())
	}

	in := backends.SpeechInput{
		Text:         req.Text,
		OutputPath:   output,
		ModelPath:    model.Path,
		Auxiliary:    backends.AuxiliaryPaths(s.descriptor, model.Path),
		Seed:         req.Seed,
		ReferenceWAV: req.ReferenceWAV,
	}

	s.logger.Info("synthesizing speech", "model", model.Name, "output", output, "chars", len(req.Text))

	res, err := s.runner.Run(ctx, launcher.Invocation{
		Executable:        exe,
		Args:              backends.SpeechArgs(in),
		RequiredArtifacts: in.RequiredArtifacts(),
		OutputPath:        output,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		ArtifactPath: res.ArtifactPath,
		Model:        model,
		Duration:     res.Duration,
		Stdout:       res.Stdout,
		Stderr:       res.Stderr,
	}, nil
}

// OutputPath names a fresh WAV file in dir:
// genhat-tts-<UTC yyyymmdd-hhmmss.nnnnnnnnn>-<8 hex>.wav
func OutputPath(dir string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s%s-%s.wav", ArtifactPrefix, now.UTC().Format("20060102-150405.000000000"), suffix)
	return filepath.Join(dir, name)
}
