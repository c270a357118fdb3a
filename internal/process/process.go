package process

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/workspace"
)

// Version — версия процессов, публикуемая в описаниях.
const Version = "1.0.0"

// Роли ссылок в метаданных процесса.
const (
	RoleDocumentation = "https://www.opengis.net/spec/wps/2.0/def/process/description/documentation"
	RoleMedia         = "https://www.opengis.net/spec/wps/2.0/def/process/description/media"
)

// Process — диагностика, доступная для запуска через job.
type Process interface {
	Description() Description

	// Execute выполняет диагностику синхронно.
	//
	// error — ошибки подготовки, генерации рецепта и поиска результатов.
	// Сбой toolchain возвращается как Result с Success=false.
	// Если ошибка случилась после запуска toolchain, вместе с ней
	// возвращается Result с логом запуска.
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// StatusFunc получает сообщения о ходе выполнения (0..100).
type StatusFunc func(message string, percent int)

// Request — запрос на выполнение процесса.
type Request struct {
	JobID     uuid.UUID
	Inputs    Values
	Workspace *workspace.Workspace
	Status    StatusFunc
}

func (r *Request) status(message string, percent int) {
	if r.Status != nil {
		r.Status(message, percent)
	}
}

// Result — результат выполнения процесса.
type Result struct {
	// Outputs — логическое имя результата → путь к файлу (или значение литерала).
	Outputs map[string]string

	Success bool
	Outcome domain.Outcome

	// Message — описание ошибки для неуспешного результата.
	Message string
}

// Metadata — ссылка в описании процесса.
type Metadata struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Role  string `json:"role,omitempty"`
}

// Output — описание результата процесса.
type Output struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	MimeType string `json:"mime_type"`

	// Literal — значение, а не файл. Такие результаты не публикуются в хранилище.
	Literal bool `json:"literal,omitempty"`
}

// Description — описание процесса для каталога.
type Description struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Abstract string     `json:"abstract"`
	Version  string     `json:"version"`
	Metadata []Metadata `json:"metadata,omitempty"`
	Inputs   []Input    `json:"inputs"`
	Outputs  []Output   `json:"outputs"`

	// Check — проверка связей между параметрами после разбора.
	Check func(Values) error `json:"-"`
}

// Output возвращает описание результата по имени.
func (d Description) Output(name string) (Output, bool) {
	for _, o := range d.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// Registry — реестр процессов по идентификатору.
type Registry struct {
	processes map[string]Process
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{processes: make(map[string]Process)}
}

// Register добавляет процесс.
func (r *Registry) Register(p Process) {
	r.processes[p.Description().ID] = p
}

// Get возвращает процесс по идентификатору.
func (r *Registry) Get(id string) (Process, error) {
	p, ok := r.processes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	return p, nil
}

// List возвращает описания всех процессов, отсортированные по ID.
func (r *Registry) List() []Description {
	out := make([]Description, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p.Description())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
