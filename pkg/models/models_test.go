package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, fs afero.Fs, dir string, names ...string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte("gguf"), 0o644))
	}
}

func TestResolveDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "/data/models", "custom.gguf")

	tests := []struct {
		name       string
		override   string
		configured string
		want       string
	}{
		{"override dir", "/data/models", "/cfg", "/data/models"},
		{"override file selects parent", "/data/models/custom.gguf", "/cfg", "/data/models"},
		{"missing override falls through", "/nope", "/cfg", "/cfg"},
		{"configured", "", "/cfg", "/cfg"},
		{"default", "", "", DefaultDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDir(fs, tt.override, tt.configured))
		})
	}
}

func TestDefaultDir(t *testing.T) {
	assert.Equal(t, filepath.Join("GenHat", "models"), filepath.Join(filepath.Base(filepath.Dir(DefaultDir())), filepath.Base(DefaultDir())))
}

func TestLibrary_List(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "/models",
		"zeta.gguf", "LFM-1.2B-INT8.gguf", "alpha.GGUF", "notes.txt",
		"ve_fp32-f16.gguf", "t3_cfg-q4_k_m.gguf", "s3gen-bf16.gguf")
	require.NoError(t, fs.MkdirAll("/models/sub.gguf", 0o755))

	lib := NewLibrary(fs, "/models")
	assert.Equal(t, "/models", lib.Dir())

	models, err := lib.List()
	require.NoError(t, err)
	assert.Equal(t, []Model{
		{Name: "LFM-1.2B-INT8.gguf", Path: filepath.Join("/models", "LFM-1.2B-INT8.gguf")},
		{Name: "alpha.GGUF", Path: filepath.Join("/models", "alpha.GGUF")},
		{Name: "zeta.gguf", Path: filepath.Join("/models", "zeta.gguf")},
	}, models)

	assets, err := lib.SpeechAssets()
	require.NoError(t, err)
	assert.Equal(t, []Model{{Name: "s3gen-bf16.gguf", Path: filepath.Join("/models", "s3gen-bf16.gguf")}}, assets)
}

func TestLibrary_ListMissingDir(t *testing.T) {
	models, err := NewLibrary(afero.NewMemMapFs(), "/missing").List()
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestLibrary_Default(t *testing.T) {
	t.Run("default-named model present", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		seed(t, fs, "/models", "a.gguf", DefaultModelName, "z.gguf")

		m, err := NewLibrary(fs, "/models").Default()
		require.NoError(t, err)
		assert.Equal(t, DefaultModelName, m.Name)
	})

	t.Run("only a custom model", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		seed(t, fs, "/models", "custom.gguf", "readme.md")

		m, err := NewLibrary(fs, "/models").Default()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/models", "custom.gguf"), m.Path)
	})

	t.Run("empty directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		seed(t, fs, "/models")

		_, err := NewLibrary(fs, "/models").Default()
		assert.True(t, launcher.IsErrorCode(err, launcher.ErrorCodeNoModelsFound))
	})

	t.Run("speech components only", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		seed(t, fs, "/models", "s3gen-bf16.gguf", "ve_fp32-f16.gguf")

		_, err := NewLibrary(fs, "/models").Default()
		assert.True(t, launcher.IsErrorCode(err, launcher.ErrorCodeNoModelsFound))
	})
}

func TestLibrary_SpeechAsset(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "/models", "s3gen-q8.gguf", "s3gen-bf16.gguf")
	lib := NewLibrary(fs, "/models")

	m, err := lib.SpeechAsset("")
	require.NoError(t, err)
	assert.Equal(t, "s3gen-bf16.gguf", m.Name)

	m, err = lib.SpeechAsset("/elsewhere/voice.gguf")
	require.NoError(t, err)
	assert.Equal(t, Model{Name: "voice.gguf", Path: "/elsewhere/voice.gguf"}, m)

	_, err = NewLibrary(fs, "/empty").SpeechAsset("")
	assert.True(t, launcher.IsErrorCode(err, launcher.ErrorCodeNoModelsFound))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsModelFile("x.gguf"))
	assert.True(t, IsModelFile("x.GGUF"))
	assert.False(t, IsModelFile("x.bin"))

	assert.True(t, IsSpeechComponent("/m/ve_fp32-f16.gguf"))
	assert.True(t, IsSpeechComponent("t3_cfg.gguf"))
	assert.True(t, IsSpeechComponent("s3gen-bf16.gguf"))
	assert.False(t, IsSpeechComponent("LFM-1.2B-INT8.gguf"))

	assert.True(t, IsSpeechAsset("s3gen-bf16.gguf"))
	assert.False(t, IsSpeechAsset("ve_fp32-f16.gguf"))
}

func TestWatcher_AddAndRemove(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.gguf"), []byte("x"), 0o644))

	w, err := NewWatcher(dir, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "new.gguf")
	require.NoError(t, os.WriteFile(path, []byte("part"), 0o644))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("rest")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, ModelAdded, ev.Kind)
	assert.Equal(t, Model{Name: "new.gguf", Path: path}, ev.Model)

	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, w)
	assert.Equal(t, ModelRemoved, ev.Kind)
	assert.Equal(t, "new.gguf", ev.Model.Name)

	require.NoError(t, os.Remove(filepath.Join(dir, "existing.gguf")))
	ev = nextEvent(t, w)
	assert.Equal(t, ModelRemoved, ev.Kind)
	assert.Equal(t, "existing.gguf", ev.Model.Name)
}

func TestWatcher_Close(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "added", ModelAdded.String())
	assert.Equal(t, "removed", ModelRemoved.String())
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for model event")
		return Event{}
	}
}
