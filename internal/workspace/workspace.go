// Package workspace управляет рабочими директориями job и приватной
// копией toolchain внутри них.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Имена файлов и каталогов внутри рабочей директории.
const (
	OutputDir   = "output"
	LogFile     = "log.txt"
	ArchiveFile = "diagnostic_result.zip"
)

// Workspace — рабочая директория одного job.
//
// Владелец — job; удаление остаётся за окружающей системой.
type Workspace struct {
	// Dir — абсолютный путь к директории.
	Dir string
}

// New создаёт директорию <root>/<jobID>.
func New(root string, jobID uuid.UUID) (*Workspace, error) {
	return Open(filepath.Join(root, jobID.String()))
}

// Open открывает директорию, создавая её при необходимости. Идемпотентна.
func Open(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &SetupError{Target: dir, Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &SetupError{Target: abs, Err: err}
	}
	return &Workspace{Dir: abs}, nil
}

// Path возвращает абсолютный путь внутри директории.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// OutputDir — каталог результатов toolchain.
func (w *Workspace) OutputDir() string { return w.Path(OutputDir) }

// LogFile — лог внешнего toolchain.
func (w *Workspace) LogFile() string { return w.Path(LogFile) }

// ArchiveFile — zip-архив результатов.
func (w *Workspace) ArchiveFile() string { return w.Path(ArchiveFile) }

// String реализует fmt.Stringer.
func (w *Workspace) String() string {
	return fmt.Sprintf("workspace(%s)", w.Dir)
}
