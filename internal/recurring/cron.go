package recurring

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время срабатывания после from.
//
// Cron считается в timezone расписания (невалидный — UTC).
// Для интервала к from добавляется IntervalSec.
func CalculateNextDue(s *Schedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		}
	}
	fromInTz := from.In(loc)

	if s.IsCron() {
		schedule, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", s.CronExpr, err)
		}
		return schedule.Next(fromInTz).UTC(), nil
	}

	if s.IsInterval() {
		return fromInTz.Add(time.Duration(s.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("schedule %q has neither cron nor interval_sec", s.Name)
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
