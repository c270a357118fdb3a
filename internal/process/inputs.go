package process

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// DataType — тип литерального входного параметра.
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeFloat   DataType = "float"
	TypeBoolean DataType = "boolean"
)

// Range — допустимый диапазон для целого параметра (включительно).
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Input — описание входного параметра.
type Input struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract,omitempty"`
	Type          DataType `json:"type"`
	Default       string   `json:"default,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Range         *Range   `json:"range,omitempty"`

	// Required — параметр без значения по умолчанию обязателен.
	Required bool `json:"required,omitempty"`
}

// Values — разобранные входные параметры: string, int, float64 или bool.
type Values map[string]any

// String возвращает строковый параметр.
func (v Values) String(name string) string {
	if s, ok := v[name].(string); ok {
		return s
	}
	return ""
}

// Int возвращает целый параметр.
func (v Values) Int(name string) int {
	switch n := v[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Float возвращает вещественный параметр.
func (v Values) Float(name string) float64 {
	switch n := v[name].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// Bool возвращает булев параметр.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Parse проверяет сырые входные параметры по описанию и приводит типы.
//
// Отсутствующие параметры получают значение по умолчанию,
// неизвестные параметры отклоняются.
func (d Description) Parse(raw map[string]any) (Values, error) {
	known := make(map[string]bool, len(d.Inputs))
	for _, in := range d.Inputs {
		known[in.Name] = true
	}

	var unknown []string
	for name := range raw {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown inputs: %s", ErrInvalidInput, strings.Join(unknown, ", "))
	}

	values := make(Values, len(d.Inputs))
	for _, in := range d.Inputs {
		rawValue, ok := raw[in.Name]
		if !ok || rawValue == nil {
			if in.Default == "" {
				if in.Required {
					return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, in.Name)
				}
				continue
			}
			rawValue = in.Default
		}

		value, err := in.convert(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, in.Name, err)
		}
		if err := in.check(value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, in.Name, err)
		}
		values[in.Name] = value
	}

	if d.Check != nil {
		if err := d.Check(values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return values, nil
}

func (in Input) convert(v any) (any, error) {
	switch in.Type {
	case TypeInteger:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int(n), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			return i, nil
		}

	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return f, nil
		}

	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case float64:
			return b != 0, nil
		case int:
			return b != 0, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return parsed, nil
		}

	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, int, bool:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("unexpected value of type %T", v)
}

func (in Input) check(v any) error {
	if len(in.AllowedValues) > 0 && !slices.Contains(in.AllowedValues, fmt.Sprint(v)) {
		return fmt.Errorf("%v is not one of [%s]", v, strings.Join(in.AllowedValues, ", "))
	}
	if in.Range != nil {
		if n, ok := v.(int); ok && (n < in.Range.Min || n > in.Range.Max) {
			return fmt.Errorf("%d is out of range %d..%d", n, in.Range.Min, in.Range.Max)
		}
	}
	return nil
}
