package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Copernicus/internal/domain"
)

// ErrInvalidSchedule — расписание не задаёт ни cron, ни интервал, или задаёт их неверно.
var ErrInvalidSchedule = errors.New("invalid schedule")

// cronParser — стандартный пятипольный формат cron.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время запуска после from (в UTC).
//
// Cron-выражение вычисляется в timezone расписания;
// неизвестная timezone трактуется как UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		loc = time.UTC
	}
	from = from.In(loc)

	switch {
	case sched.IsCron():
		s, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, sched.CronExpr, err)
		}
		return s.Next(from).UTC(), nil
	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: neither cron_expr nor interval_sec is set", ErrInvalidSchedule)
	}
}

// Validate проверяет расписание перед сохранением.
func Validate(sched *domain.Schedule) error {
	if sched.ProcessID == "" {
		return fmt.Errorf("%w: process_id is required", ErrInvalidSchedule)
	}
	if sched.IntervalSec < 0 {
		return fmt.Errorf("%w: interval_sec must be positive", ErrInvalidSchedule)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, sched.Timezone, err)
		}
	}
	_, err := CalculateNextDue(sched, time.Now())
	return err
}

// InitialNextDue вычисляет первое время запуска для нового расписания.
func InitialNextDue(sched *domain.Schedule, now time.Time) (time.Time, error) {
	return CalculateNextDue(sched, now)
}
