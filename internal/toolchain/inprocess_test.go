package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

var fixedNow = func() time.Time {
	return time.Date(2018, 6, 1, 12, 30, 45, 0, time.UTC)
}

// writeConfig создаёт config.yml и recipe.yml в новой рабочей директории.
func writeConfig(t *testing.T, config string) (recipe, cfg string) {
	t.Helper()
	workdir := t.TempDir()
	recipe = filepath.Join(workdir, "recipe.yml")
	cfg = filepath.Join(workdir, "config.yml")
	if err := os.WriteFile(recipe, []byte("datasets: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	return recipe, cfg
}

// startSession — toolchain-функция, создающая сессию на момент fixedNow.
func startSession(fn func(s *Session) error) ToolchainFunc {
	return func(_ context.Context, _ string, cfg *UserConfig) (*Session, error) {
		s, err := cfg.StartSession(fixedNow())
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(s.MainLog, []byte("toolchain started\n"), 0o644); err != nil {
			return s, err
		}
		if fn == nil {
			return s, nil
		}
		return s, fn(s)
	}
}

// fakeCLI имитирует CLI toolchain: сам выбирает имя сессии по текущему времени,
// отказывается работать в существующем run_dir и пишет график в plots.
const fakeCLI = `#!/bin/sh
cfg="$3"; recipe="$4"
out="$(dirname "$cfg")/output"
session="$out/$(basename "$recipe" .yml)_$(date -u +%Y%m%d_%H%M%S)"
if [ -d "$session/run" ]; then
  echo "ERROR: run_dir $session/run already exists" >&2
  exit 1
fi
mkdir -p "$session/run" "$session/plots/ta850/cycle" "$session/work"
echo "cwd $(pwd)" > "$session/run/main_log.txt"
: > "$session/plots/ta850/cycle/ta_cycle_monthlyclim__Glob.pdf"
echo "esmvaltool done"
`

func writeCLI(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "esmvaltool")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestLoadUserConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantOut   string // относительно каталога конфигурации
		wantLevel string
		wantErr   bool
	}{
		{"absolute", "output_dir: /srv/out\nlog_level: debug\n", "/srv/out", "debug", false},
		{"relative", "output_dir: output\n", "output", "info", false},
		{"missing output_dir", "log_level: info\n", "", "", true},
		{"invalid yaml", "output_dir: [\n", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipe, cfgFile := writeConfig(t, tt.config)
			cfg, err := LoadUserConfig(cfgFile, recipe)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			wantOut := tt.wantOut
			if !filepath.IsAbs(wantOut) {
				wantOut = filepath.Join(filepath.Dir(cfgFile), wantOut)
			}
			if cfg.OutputDir != wantOut {
				t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, wantOut)
			}
			if cfg.RecipeName != "recipe" || cfg.LogLevel != tt.wantLevel {
				t.Errorf("RecipeName = %q, LogLevel = %q", cfg.RecipeName, cfg.LogLevel)
			}

			s := cfg.SessionAt(fixedNow())
			if s.Dir != filepath.Join(wantOut, "recipe_20180601_123045") {
				t.Errorf("session Dir = %q", s.Dir)
			}
			if s.RunDir != filepath.Join(s.Dir, "run") || s.PlotDir != filepath.Join(s.Dir, "plots") {
				t.Errorf("RunDir = %q, PlotDir = %q", s.RunDir, s.PlotDir)
			}
			if s.MainLog != filepath.Join(s.RunDir, "main_log.txt") {
				t.Errorf("MainLog = %q", s.MainLog)
			}
		})
	}
}

func TestInProcessInvoker_Success(t *testing.T) {
	recipe, cfg := writeConfig(t, "output_dir: output\nlog_level: info\n")

	var got *Session
	inv := NewInProcessInvoker(InProcessConfig{
		Toolchain: ToolchainFunc(func(ctx context.Context, recipeFile string, c *UserConfig) (*Session, error) {
			s, err := startSession(func(s *Session) error {
				return os.MkdirAll(filepath.Join(s.PlotDir, "zmnam", "main"), 0o755)
			})(ctx, recipeFile, c)
			got = s
			telemetry.FromContext(ctx).Info("diagnostic done")
			return s, err
		}),
		SentinelFile: DefaultSentinelFile,
		Now:          fixedNow,
	})

	res, err := inv.Run(context.Background(), recipe, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %s: %s", res.Outcome, res.Message)
	}
	if got == nil {
		t.Fatal("toolchain was not called")
	}
	if res.RunDir != got.RunDir || res.PlotDir != got.PlotDir || res.WorkDir != got.WorkDir {
		t.Errorf("result dirs do not match session: %+v", res)
	}
	if res.LogFile != got.MainLog {
		t.Errorf("LogFile = %q, want toolchain main log %q", res.LogFile, got.MainLog)
	}

	invokeLog, err := os.ReadFile(filepath.Join(filepath.Dir(cfg), DefaultInvokeLog))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(invokeLog), "diagnostic done") {
		t.Errorf("toolchain logger should write to invoke log:\n%s", invokeLog)
	}
}

func TestInProcessInvoker_RunDirExists(t *testing.T) {
	recipe, cfgFile := writeConfig(t, "output_dir: output\n")

	cfg, err := LoadUserConfig(cfgFile, recipe)
	if err != nil {
		t.Fatal(err)
	}
	s := cfg.SessionAt(fixedNow())
	if err := os.MkdirAll(s.RunDir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(s.RunDir, "previous.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	called := false
	inv := NewInProcessInvoker(InProcessConfig{
		Toolchain: ToolchainFunc(func(context.Context, string, *UserConfig) (*Session, error) {
			called = true
			return nil, nil
		}),
		Now: fixedNow,
	})

	_, err = inv.Run(context.Background(), recipe, cfgFile)
	if !errors.Is(err, ErrRunDirExists) {
		t.Fatalf("expected ErrRunDirExists, got %v", err)
	}
	if called {
		t.Error("toolchain must not be called when run dir exists")
	}
	if _, err := os.Stat(s.MainLog); !os.IsNotExist(err) {
		t.Error("existing run dir must stay untouched")
	}
	if data, _ := os.ReadFile(marker); string(data) != "keep" {
		t.Error("existing files must stay untouched")
	}
}

func TestInProcessInvoker_Failures(t *testing.T) {
	tests := []struct {
		name        string
		toolchain   ToolchainFunc
		wantMsg     string
		wantMainLog bool
	}{
		{
			name: "error after session started",
			toolchain: startSession(func(*Session) error {
				return errors.New("recipe check failed")
			}),
			wantMsg:     "recipe check failed",
			wantMainLog: true,
		},
		{
			name: "panic",
			toolchain: func(context.Context, string, *UserConfig) (*Session, error) {
				panic("index out of range")
			},
			wantMsg: "panic: index out of range",
		},
		{
			name: "no session reported",
			toolchain: func(context.Context, string, *UserConfig) (*Session, error) {
				return nil, nil
			},
			wantMsg: "toolchain reported no session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipe, cfg := writeConfig(t, "output_dir: output\n")
			inv := NewInProcessInvoker(InProcessConfig{Toolchain: tt.toolchain, Now: fixedNow})

			res, err := inv.Run(context.Background(), recipe, cfg)
			if err != nil {
				t.Fatalf("Run should not return error, got %v", err)
			}
			if res.Outcome != domain.OutcomeToolchainFailure {
				t.Fatalf("outcome = %s", res.Outcome)
			}
			if !strings.Contains(res.Message, tt.wantMsg) {
				t.Errorf("message = %q, want contains %q", res.Message, tt.wantMsg)
			}

			var internal *ToolchainInternalError
			if !errors.As(res.Err(), &internal) {
				t.Fatalf("expected *ToolchainInternalError, got %T", res.Err())
			}
			if !strings.Contains(internal.Stack, "goroutine") {
				t.Errorf("stack trace missing: %q", internal.Stack)
			}

			isMainLog := filepath.Base(res.LogFile) == "main_log.txt"
			if isMainLog != tt.wantMainLog {
				t.Errorf("LogFile = %q", res.LogFile)
			}
			log, _ := os.ReadFile(res.LogFile)
			if !strings.Contains(string(log), tt.wantMsg) {
				t.Errorf("log missing error:\n%s", log)
			}
		})
	}
}

func TestInProcessInvoker_NoDataFound(t *testing.T) {
	recipe, cfg := writeConfig(t, "output_dir: output\n")

	inv := NewInProcessInvoker(InProcessConfig{
		Toolchain: startSession(func(*Session) error {
			return os.WriteFile(filepath.Join(filepath.Dir(cfg), DefaultSentinelFile), nil, 0o644)
		}),
		SentinelFile: DefaultSentinelFile,
		Now:          fixedNow,
	})

	res, err := inv.Run(context.Background(), recipe, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeNoDataFound || !errors.Is(res.Err(), ErrNoDataFound) {
		t.Errorf("outcome = %s, err = %v", res.Outcome, res.Err())
	}
}

func TestInProcessInvoker_CommandOwnsSession(t *testing.T) {
	recipe, cfg := writeConfig(t, "output_dir: output\n")
	workdir := filepath.Dir(cfg)

	// Сессия прошлого запуска того же рецепта не должна быть выбрана.
	old := filepath.Join(workdir, "output", "recipe_20000101_000000", "run")
	if err := os.MkdirAll(old, 0o755); err != nil {
		t.Fatal(err)
	}

	inv := NewInProcessInvoker(InProcessConfig{
		Toolchain:    &CommandToolchain{Binary: writeCLI(t, fakeCLI)},
		Preparer:     &scriptPreparer{script: ""},
		SentinelFile: DefaultSentinelFile,
	})

	res, err := inv.Run(context.Background(), recipe, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %s: %s", res.Outcome, res.Message)
	}
	if filepath.Dir(res.RunDir) == filepath.Dir(old) {
		t.Fatalf("picked up previous session %q", res.RunDir)
	}

	plots, err := filepath.Glob(filepath.Join(res.PlotDir, "*", "*", "*.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if len(plots) != 1 || filepath.Base(plots[0]) != "ta_cycle_monthlyclim__Glob.pdf" {
		t.Errorf("plots in %s = %v", res.PlotDir, plots)
	}

	if res.LogFile != filepath.Join(res.RunDir, "main_log.txt") {
		t.Errorf("LogFile = %q", res.LogFile)
	}
	mainLog, _ := os.ReadFile(res.LogFile)
	if want := "cwd " + filepath.Join(workdir, "esmvaltool"); !strings.Contains(string(mainLog), want) {
		t.Errorf("toolchain should run in its home, main log:\n%s", mainLog)
	}
	invokeLog, _ := os.ReadFile(filepath.Join(workdir, DefaultInvokeLog))
	if !strings.Contains(string(invokeLog), "esmvaltool done") {
		t.Errorf("console output missing from invoke log:\n%s", invokeLog)
	}
}

func TestCommandToolchain_Failures(t *testing.T) {
	tests := []struct {
		name     string
		binary   string
		wantExit int
		wantErr  error
	}{
		{"exit without session", "true", 0, ErrSessionNotFound},
		{"non-zero exit", "false", 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipe, cfg := writeConfig(t, "output_dir: output\n")
			inv := NewInProcessInvoker(InProcessConfig{
				Toolchain: &CommandToolchain{Binary: tt.binary},
				Now:       fixedNow,
			})
			res, err := inv.Run(context.Background(), recipe, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != domain.OutcomeToolchainFailure {
				t.Fatalf("outcome = %s: %s", res.Outcome, res.Message)
			}
			if res.LogFile != filepath.Join(filepath.Dir(cfg), DefaultInvokeLog) {
				t.Errorf("LogFile = %q, want invoke log", res.LogFile)
			}
			if tt.wantErr != nil {
				if !errors.Is(res.Err(), tt.wantErr) {
					t.Errorf("Err() = %v, want %v", res.Err(), tt.wantErr)
				}
				return
			}
			var execErr *ExecutionError
			if !errors.As(res.Err(), &execErr) {
				t.Fatalf("expected *ExecutionError in chain, got %v", res.Err())
			}
			if execErr.ExitCode != tt.wantExit {
				t.Errorf("exit code = %d, want %d", execErr.ExitCode, tt.wantExit)
			}
		})
	}
}
