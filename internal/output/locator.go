// Package output находит артефакты диагностики и упаковывает их в архив.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shaiso/Copernicus/internal/telemetry"
)

// DescriptorVersion — текущая версия формата Descriptor.
const DescriptorVersion = 1

// Descriptor — описание ожидаемого артефакта.
//
// Path задаёт точный путь (относительно корня поиска или абсолютный).
// Если Path пуст или файла нет, используется поиск по шаблону
// <Pattern>/<NamePattern>.<Ext>.
type Descriptor struct {
	Version     int    `json:"version" yaml:"version"`
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	NamePattern string `json:"name_pattern,omitempty" yaml:"name_pattern,omitempty"`
	Ext         string `json:"ext,omitempty" yaml:"ext,omitempty"`
}

// Locator ищет файлы результатов в каталогах toolchain.
type Locator struct {
	logger *slog.Logger
}

// NewLocator создаёт Locator.
func NewLocator(logger *slog.Logger) *Locator {
	return &Locator{logger: telemetry.OrDefault(logger)}
}

// Find ищет <root>/<pathPattern>/<namePattern>.<ext>.
//
// Пустой namePattern означает "*", пустой ext — без расширения.
// Несколько совпадений — предупреждение в лог и первое совпадение
// в порядке glob (лексикографическом).
func (l *Locator) Find(root, pathPattern, namePattern, ext string) (string, error) {
	return l.find("", root, pathPattern, namePattern, ext)
}

// Resolve находит файл для дескриптора.
func (l *Locator) Resolve(root string, d Descriptor) (string, error) {
	if d.Version > DescriptorVersion {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedDescriptor, d.Version)
	}

	if d.Path != "" {
		p := d.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if d.Pattern == "" && d.NamePattern == "" && d.Ext == "" {
			return "", &NotFoundError{Name: d.Name, Pattern: p}
		}
		l.logger.Debug("output path missing, falling back to search", "output", d.Name, "path", p)
	}

	return l.find(d.Name, root, d.Pattern, d.NamePattern, d.Ext)
}

func (l *Locator) find(name, root, pathPattern, namePattern, ext string) (string, error) {
	if namePattern == "" {
		namePattern = "*"
	}
	file := namePattern
	if ext != "" {
		file += "." + ext
	}
	pattern := filepath.Join(root, pathPattern, file)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Name: name, Pattern: pattern}
	case 1:
		return matches[0], nil
	default:
		l.logger.Warn("more than one output found, using the first one",
			"output", name,
			"pattern", pattern,
			"matches", matches,
		)
		return matches[0], nil
	}
}
