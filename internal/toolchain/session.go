package toolchain

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// sessionTimeLayout — формат метки времени в имени каталога сессии.
const sessionTimeLayout = "20060102_150405"

// UserConfig — разобранная конфигурация toolchain (config-user).
type UserConfig struct {
	File       string
	RecipeName string
	OutputDir  string

	LogLevel       string
	OutputFileType string

	// Settings — конфигурация целиком, как её прочитал YAML парсер.
	Settings map[string]any

	// Home — рабочий каталог toolchain (приватная копия). Пустой — каталог File.
	Home string

	// Log — лог invoker-а на время вызова. Сюда пишется консольный вывод toolchain.
	Log io.Writer
}

// Session — каталоги одного запуска, как их сообщил toolchain:
//
//	<output_dir>/<recipe>_<YYYYMMDD_HHMMSS>/{run,plots,work,preproc}
type Session struct {
	Dir        string
	RunDir     string
	PlotDir    string
	WorkDir    string
	PreprocDir string

	// MainLog — собственный лог toolchain, <run_dir>/main_log.txt.
	MainLog string
}

// LoadUserConfig читает конфигурацию toolchain.
// Относительный output_dir отсчитывается от каталога файла конфигурации.
func LoadUserConfig(configFile, recipeFile string) (*UserConfig, error) {
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	settings := make(map[string]any)
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, configFile, err)
	}

	outputDir, _ := settings["output_dir"].(string)
	if outputDir == "" {
		return nil, fmt.Errorf("%w: %s: output_dir is required", ErrInvalidConfig, configFile)
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(filepath.Dir(configFile), outputDir)
	}

	logLevel, _ := settings["log_level"].(string)
	if logLevel == "" {
		logLevel = "info"
	}
	fileType, _ := settings["output_file_type"].(string)
	if fileType == "" {
		fileType = "png"
	}

	return &UserConfig{
		File:           configFile,
		RecipeName:     strings.TrimSuffix(filepath.Base(recipeFile), filepath.Ext(recipeFile)),
		OutputDir:      outputDir,
		LogLevel:       logLevel,
		OutputFileType: fileType,
		Settings:       settings,
	}, nil
}

// SessionAt возвращает каталоги сессии, которую toolchain начал бы в момент now.
func (c *UserConfig) SessionAt(now time.Time) *Session {
	return sessionIn(filepath.Join(c.OutputDir, c.RecipeName+"_"+now.UTC().Format(sessionTimeLayout)))
}

// StartSession создаёт каталоги сессии для момента now.
// Существующий run_dir не трогается: возвращается ErrRunDirExists.
func (c *UserConfig) StartSession(now time.Time) (*Session, error) {
	s := c.SessionAt(now)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if err := os.Mkdir(s.RunDir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunDirExists, s.RunDir)
		}
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return s, nil
}

// sessionDirs возвращает каталоги сессий рецепта в output_dir.
func (c *UserConfig) sessionDirs() (map[string]bool, error) {
	matches, err := filepath.Glob(filepath.Join(c.OutputDir, c.RecipeName+"_*"))
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]bool, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs[m] = true
		}
	}
	return dirs, nil
}

// createdSession находит сессию, появившуюся после снимка before.
// Из нескольких новых берётся самая поздняя.
func (c *UserConfig) createdSession(before map[string]bool) (*Session, error) {
	after, err := c.sessionDirs()
	if err != nil {
		return nil, err
	}
	var created []string
	for dir := range after {
		if !before[dir] {
			created = append(created, dir)
		}
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("%w: %s_* in %s", ErrSessionNotFound, c.RecipeName, c.OutputDir)
	}
	sort.Strings(created)
	return sessionIn(created[len(created)-1]), nil
}

func sessionIn(dir string) *Session {
	runDir := filepath.Join(dir, "run")
	return &Session{
		Dir:        dir,
		RunDir:     runDir,
		PlotDir:    filepath.Join(dir, "plots"),
		WorkDir:    filepath.Join(dir, "work"),
		PreprocDir: filepath.Join(dir, "preproc"),
		MainLog:    filepath.Join(runDir, "main_log.txt"),
	}
}
