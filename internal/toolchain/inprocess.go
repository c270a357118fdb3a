package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// DefaultInvokeLog — лог invoker-а в рабочей директории job.
const DefaultInvokeLog = "invoke_log.txt"

// Toolchain — entry point toolchain для in-process запуска.
//
// Process получает разобранную конфигурацию и возвращает сессию, которую
// toolchain фактически создал. Имена каталогов решает toolchain.
// При ошибке сессия возвращается, если она успела появиться.
type Toolchain interface {
	Process(ctx context.Context, recipeFile string, cfg *UserConfig) (*Session, error)
}

// ToolchainFunc — адаптер функции к интерфейсу Toolchain.
type ToolchainFunc func(ctx context.Context, recipeFile string, cfg *UserConfig) (*Session, error)

// Process реализует Toolchain.
func (f ToolchainFunc) Process(ctx context.Context, recipeFile string, cfg *UserConfig) (*Session, error) {
	return f(ctx, recipeFile, cfg)
}

// InProcessConfig — конфигурация InProcessInvoker.
type InProcessConfig struct {
	Toolchain Toolchain

	// Preparer — опционально; даёт рабочий каталог toolchain (UserConfig.Home).
	Preparer Preparer

	// LogFile — имя лога invoker-а в рабочей директории. Пустое — DefaultInvokeLog.
	LogFile string

	SentinelFile string

	// Now — источник времени для проверки run_dir. nil — time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// InProcessInvoker вызывает Toolchain в текущем процессе.
//
// Любая ошибка или panic toolchain перехватывается, логируется со стеком
// и возвращается как OutcomeToolchainFailure.
type InProcessInvoker struct {
	toolchain Toolchain
	preparer  Preparer
	logFile   string
	sentinel  string
	now       func() time.Time
	logger    *slog.Logger
}

// NewInProcessInvoker создаёт InProcessInvoker.
func NewInProcessInvoker(cfg InProcessConfig) *InProcessInvoker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultInvokeLog
	}
	return &InProcessInvoker{
		toolchain: cfg.Toolchain,
		preparer:  cfg.Preparer,
		logFile:   cfg.LogFile,
		sentinel:  cfg.SentinelFile,
		now:       cfg.Now,
		logger:    telemetry.OrDefault(cfg.Logger),
	}
}

// Run реализует Invoker.
//
// Если run_dir сессии, которую toolchain начал бы сейчас, уже существует,
// toolchain не вызывается и возвращается ErrRunDirExists.
// Каталоги результата берутся из сессии, которую вернул toolchain.
func (i *InProcessInvoker) Run(ctx context.Context, recipeFile, configFile string) (*domain.RunResult, error) {
	workdir := filepath.Dir(configFile)

	cfg, err := LoadUserConfig(configFile, recipeFile)
	if err != nil {
		return nil, err
	}
	if i.preparer != nil {
		home, err := i.preparer.Prepare(ctx, filepath.Dir(recipeFile))
		if err != nil {
			return nil, err
		}
		cfg.Home = home
	}

	expected := cfg.SessionAt(i.now())
	logger := i.logger.With("recipe", recipeFile, "output_dir", cfg.OutputDir)

	if _, err := os.Stat(expected.RunDir); err == nil {
		logger.Error("run directory already exists, refusing to start", "run_dir", expected.RunDir)
		return nil, fmt.Errorf("%w: %s", ErrRunDirExists, expected.RunDir)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("check run dir: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	invokeLog := filepath.Join(workdir, i.logFile)
	logFile, err := os.Create(invokeLog)
	if err != nil {
		return nil, fmt.Errorf("create invoke log: %w", err)
	}
	defer logFile.Close()
	cfg.Log = logFile

	fmt.Fprintf(logFile, "%s starting %s with config %s\n",
		i.now().UTC().Format(time.RFC3339), recipeFile, configFile)

	// Логгер toolchain пишет в лог invoker-а с уровнем из конфигурации.
	tcLogger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	tcCtx := telemetry.WithLogger(ctx, tcLogger)

	logger.Info("running toolchain in process", "home", cfg.Home)

	s, internal := i.call(tcCtx, recipeFile, cfg)

	res := &domain.RunResult{LogFile: invokeLog}
	if s != nil {
		res.RunDir = s.RunDir
		res.PlotDir = s.PlotDir
		res.WorkDir = s.WorkDir
		if fileExists(s.MainLog) {
			res.LogFile = s.MainLog
		}
	}

	if internal != nil {
		logger.Error("toolchain failed", "error", internal.Err, "stack", internal.Stack, "log", res.LogFile)
		report := fmt.Sprintf("ERROR %v\n%s\n", internal.Err, internal.Stack)
		fmt.Fprint(logFile, report)
		if res.LogFile != invokeLog {
			if err := appendFile(res.LogFile, report); err != nil {
				logger.Warn("failed to append error to toolchain log", "error", err)
			}
		}
		return failure(res, internal), nil
	}

	missing, err := noDataFound(workdir, i.sentinel)
	if err != nil {
		return nil, fmt.Errorf("check sentinel file: %w", err)
	}
	if missing {
		logger.Warn("toolchain found no input data", "sentinel", i.sentinel)
		return missingData(res, workdir, i.sentinel), nil
	}

	res.Outcome = domain.OutcomeSuccess
	logger.Info("toolchain finished", "run_dir", res.RunDir, "log", res.LogFile)
	return res, nil
}

// call вызывает toolchain, превращая ошибку и panic в ToolchainInternalError.
func (i *InProcessInvoker) call(ctx context.Context, recipeFile string, cfg *UserConfig) (s *Session, internal *ToolchainInternalError) {
	defer func() {
		if r := recover(); r != nil {
			internal = &ToolchainInternalError{
				Err:   fmt.Errorf("panic: %v", r),
				Stack: string(debug.Stack()),
			}
		}
	}()

	s, err := i.toolchain.Process(ctx, recipeFile, cfg)
	if err == nil && s == nil {
		err = fmt.Errorf("%w: toolchain reported no session", ErrSessionNotFound)
	}
	if err != nil {
		return s, &ToolchainInternalError{Err: err, Stack: string(debug.Stack())}
	}
	return s, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
