package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Стандартные измерения поиска данных в архиве.
const (
	DimModel         = "model"
	DimExperiment    = "experiment"
	DimEnsemble      = "ensemble"
	DimTimeFrequency = "time_frequency"
	DimVariable      = "variable"
	DimTable         = "cmor_table"
)

// Constraints — ограничения поиска данных: измерение → значение или список значений.
//
// Создаётся заново для каждого запроса и живёт не дольше job.
// Значение — string либо []string (несколько кандидатов).
type Constraints map[string]any

// Set устанавливает одно значение измерения.
func (c Constraints) Set(dim, value string) Constraints {
	c[dim] = value
	return c
}

// Add добавляет кандидата к измерению, превращая значение в список.
// Повторяющиеся значения не добавляются.
func (c Constraints) Add(dim, value string) Constraints {
	values := c.Values(dim)
	for _, v := range values {
		if v == value {
			return c
		}
	}
	c[dim] = append(values, value)
	return c
}

// Values возвращает все значения измерения в виде списка.
func (c Constraints) Values(dim string) []string {
	switch v := c[dim].(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// First возвращает первое значение измерения или "".
func (c Constraints) First(dim string) string {
	values := c.Values(dim)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Keys возвращает измерения в отсортированном порядке.
func (c Constraints) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String — компактное представление для логов: "experiment=historical model=MPI-ESM-LR".
func (c Constraints) String() string {
	parts := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		parts = append(parts, k+"="+strings.Join(c.Values(k), ","))
	}
	return strings.Join(parts, " ")
}
