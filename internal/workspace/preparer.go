package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/shaiso/Copernicus/internal/telemetry"
)

// DefaultExclude — пути, которые не копируются из установки toolchain.
var DefaultExclude = []string{"doc/sphinx", "tests", "*.pdf"}

// PreparerConfig — конфигурация Preparer.
type PreparerConfig struct {
	// Source — каталог установки toolchain.
	Source string

	// Name — имя копии внутри рабочей директории.
	Name string

	// Exclude — шаблоны path.Match. Сравниваются и с относительным путём,
	// и с именем файла. nil — DefaultExclude.
	Exclude []string

	Logger *slog.Logger
}

// Preparer копирует установку toolchain в рабочую директорию job.
//
// Если копия уже есть, она не обновляется. Одновременная первая подготовка
// одной и той же директории не поддерживается.
type Preparer struct {
	source  string
	name    string
	exclude []string
	logger  *slog.Logger
}

// NewPreparer создаёт Preparer.
func NewPreparer(cfg PreparerConfig) *Preparer {
	exclude := cfg.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	return &Preparer{
		source:  cfg.Source,
		name:    cfg.Name,
		exclude: exclude,
		logger:  telemetry.OrDefault(cfg.Logger),
	}
}

// Home возвращает путь к копии toolchain в workdir.
func (p *Preparer) Home(workdir string) string {
	return filepath.Join(workdir, p.name)
}

// Prepare гарантирует наличие копии toolchain в workdir и возвращает её путь.
//
// Копирование идёт во временный каталог с последующим rename,
// поэтому прерванная копия не принимается за готовую.
func (p *Preparer) Prepare(ctx context.Context, workdir string) (string, error) {
	home := p.Home(workdir)

	if info, err := os.Stat(home); err == nil {
		if !info.IsDir() {
			return "", p.fail(home, fmt.Errorf("%s exists and is not a directory", home))
		}
		return home, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", p.fail(home, err)
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", p.fail(home, err)
	}

	tmp, err := os.MkdirTemp(workdir, "."+p.name+".partial-")
	if err != nil {
		return "", p.fail(home, err)
	}

	if err := p.copyTree(ctx, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return "", p.fail(home, err)
	}

	if err := os.Rename(tmp, home); err != nil {
		_ = os.RemoveAll(tmp)
		return "", p.fail(home, err)
	}

	p.logger.Debug("toolchain prepared", "source", p.source, "home", home)
	return home, nil
}

func (p *Preparer) fail(target string, err error) error {
	p.logger.Error("could not prepare toolchain",
		"source", p.source,
		"target", target,
		"error", err,
	)
	return &SetupError{Source: p.source, Target: target, Err: err}
}

// excluded проверяет относительный путь (с разделителями '/') по шаблонам.
func (p *Preparer) excluded(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range p.exclude {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (p *Preparer) copyTree(ctx context.Context, dst string) error {
	info, err := os.Stat(p.source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", p.source)
	}

	return filepath.WalkDir(p.source, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(p.source, src)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if p.excluded(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(src)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)

		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, fi.Mode().Perm())

		case d.Type().IsRegular():
			return copyFile(src, target)

		default:
			// Сокеты, устройства и т.п. пропускаем
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
