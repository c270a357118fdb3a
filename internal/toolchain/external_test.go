package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/Copernicus/internal/domain"
)

// scriptPreparer кладёт в домашний каталог shell-скрипт вместо main.py.
type scriptPreparer struct {
	script string
	err    error
}

func (p *scriptPreparer) Prepare(_ context.Context, workdir string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	home := filepath.Join(workdir, "esmvaltool")
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}
	return home, os.WriteFile(filepath.Join(home, "main.py"), []byte(p.script), 0o644)
}

func newExternal(script string) *ExternalInvoker {
	return NewExternalInvoker(ExternalConfig{
		Preparer:     &scriptPreparer{script: script},
		Interpreter:  "sh",
		SentinelFile: DefaultSentinelFile,
	})
}

func writeRecipe(t *testing.T) (string, string) {
	t.Helper()
	workdir := t.TempDir()
	recipe := filepath.Join(workdir, "namelist.xml")
	config := filepath.Join(workdir, "esgf_config.xml")
	for _, f := range []string{recipe, config} {
		if err := os.WriteFile(f, []byte("<namelist/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return recipe, config
}

func TestExternalInvoker_Success(t *testing.T) {
	recipe, config := writeRecipe(t)
	workdir := filepath.Dir(recipe)

	inv := newExternal(`echo "processing $1"; echo "warning" >&2; pwd`)
	res, err := inv.Run(context.Background(), recipe, config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %s: %s", res.Outcome, res.Message)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}

	if res.LogFile != filepath.Join(workdir, "log.txt") {
		t.Errorf("LogFile = %q", res.LogFile)
	}
	log, err := os.ReadFile(res.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	// stdout и stderr попадают в один лог, cwd — домашний каталог toolchain
	for _, want := range []string{"processing " + recipe, "warning", filepath.Join(workdir, "esmvaltool")} {
		if !strings.Contains(string(log), want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}

func TestExternalInvoker_NonZeroExit(t *testing.T) {
	recipe, config := writeRecipe(t)

	inv := newExternal(`echo "Traceback: boom"; exit 3`)
	res, err := inv.Run(context.Background(), recipe, config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeToolchainFailure {
		t.Fatalf("outcome = %s, want TOOLCHAIN_FAILURE", res.Outcome)
	}

	var execErr *ExecutionError
	if !errors.As(res.Err(), &execErr) {
		t.Fatalf("expected *ExecutionError, got %T", res.Err())
	}
	if execErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Output, "Traceback: boom") {
		t.Errorf("output = %q", execErr.Output)
	}
	if !strings.Contains(res.Message, "Traceback: boom") {
		t.Errorf("message should carry output tail, got %q", res.Message)
	}

	// Лог пишется и при ошибке
	log, _ := os.ReadFile(res.LogFile)
	if !strings.Contains(string(log), "Traceback: boom") {
		t.Errorf("log = %q", log)
	}
}

func TestExternalInvoker_NoDataFound(t *testing.T) {
	recipe, config := writeRecipe(t)

	inv := newExternal(`echo "missing data" > ../` + DefaultSentinelFile)
	res, err := inv.Run(context.Background(), recipe, config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeNoDataFound {
		t.Fatalf("outcome = %s, want NO_DATA_FOUND", res.Outcome)
	}
	if !errors.Is(res.Err(), ErrNoDataFound) {
		t.Errorf("Err() = %v, want ErrNoDataFound", res.Err())
	}
}

func TestExternalInvoker_PrepareFailure(t *testing.T) {
	recipe, config := writeRecipe(t)
	prepErr := errors.New("setup failed")

	inv := NewExternalInvoker(ExternalConfig{
		Preparer:    &scriptPreparer{err: prepErr},
		Interpreter: "sh",
	})
	res, err := inv.Run(context.Background(), recipe, config)
	if !errors.Is(err, prepErr) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if res != nil {
		t.Error("result should be nil on setup failure")
	}
}

func TestExternalInvoker_MissingInterpreter(t *testing.T) {
	recipe, config := writeRecipe(t)

	inv := NewExternalInvoker(ExternalConfig{
		Preparer:    &scriptPreparer{script: "true"},
		Interpreter: filepath.Join(t.TempDir(), "no-such-interpreter"),
	})
	res, err := inv.Run(context.Background(), recipe, config)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var execErr *ExecutionError
	if !errors.As(res.Err(), &execErr) {
		t.Fatalf("expected *ExecutionError, got %v", res.Err())
	}
	if execErr.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", execErr.ExitCode)
	}
}
