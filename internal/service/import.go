package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/labportal/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ImportRow - строка файла расписания в исходном текстовом виде
type ImportRow struct {
	Line         int
	Day          string
	ScheduleDate string
	StartTime    string
	EndTime      string
	CourseName   string
	LecturerName string
	LabID        string
	RepeatWeeks  string
}

// ImportRowResult - итог по одной строке
type ImportRowResult struct {
	Line    int    `json:"line"`
	OK      bool   `json:"ok"`
	Created int    `json:"created"`
	Error   string `json:"error,omitempty"`
}

type ImportResult struct {
	SuccessCount int               `json:"success_count"`
	Results      []ImportRowResult `json:"results"`
}

// Errors возвращает текст ошибок по неуспешным строкам
func (r *ImportResult) Errors() []string {
	var out []string
	for _, row := range r.Results {
		if !row.OK {
			out = append(out, fmt.Sprintf("line %d: %s", row.Line, row.Error))
		}
	}
	return out
}

func (row ImportRow) toInput() (ScheduleInput, error) {
	in := ScheduleInput{
		Day:       strings.TrimSpace(row.Day),
		StartTime: strings.TrimSpace(row.StartTime),
		EndTime:   strings.TrimSpace(row.EndTime),
	}

	vErr := &ValidationError{}
	labID, err := strconv.ParseInt(strings.TrimSpace(row.LabID), 10, 64)
	if err != nil {
		vErr.add("lab_id", "must be a number")
	}
	in.LabID = labID

	if v := strings.TrimSpace(row.ScheduleDate); v != "" {
		date, err := time.Parse(time.DateOnly, v)
		if err != nil {
			vErr.add("schedule_date", "must be YYYY-MM-DD")
		} else {
			in.Date = &date
		}
	}
	if v := strings.TrimSpace(row.RepeatWeeks); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			vErr.add("repeat_weeks", "must be a number")
		}
		in.RepeatWeeks = n
	}
	if v := strings.TrimSpace(row.CourseName); v != "" {
		in.CourseName = &v
	}
	if v := strings.TrimSpace(row.LecturerName); v != "" {
		in.LecturerName = &v
	}

	return in, vErr.orNil()
}

// Import создаёт серии занятий построчно. Каждая строка выполняется в
// своей транзакции: ошибка строки отменяет только её серию.
func (s *ScheduleService) Import(ctx context.Context, actor Actor, rows []ImportRow) (result *ImportResult, err error) {
	ctx, span := startSpan(ctx, "ScheduleService.Import", attribute.Int("rows", len(rows)))
	defer func() { endSpan(span, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	result = &ImportResult{Results: make([]ImportRowResult, 0, len(rows))}
	for _, row := range rows {
		res := ImportRowResult{Line: row.Line}

		created, err := s.importRow(ctx, row)
		switch {
		case err == nil:
			res.OK, res.Created = true, created
			result.SuccessCount++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// уже созданные серии остаются, вызывающий видит их в result
			s.logger.Warn("Schedule import interrupted",
				zap.Int("line", row.Line),
				zap.Int("success", result.SuccessCount),
				zap.Error(err),
			)
			return result, err
		default:
			res.Error = err.Error()
			s.logger.Warn("Import row skipped",
				zap.Int("line", row.Line),
				zap.String("kind", ErrorKind(err)),
				zap.Error(err),
			)
		}
		result.Results = append(result.Results, res)
	}

	s.logger.Info("Schedule import finished",
		zap.Int("rows", len(rows)),
		zap.Int("success", result.SuccessCount),
	)
	return result, nil
}

func (s *ScheduleService) importRow(ctx context.Context, row ImportRow) (int, error) {
	in, err := row.toInput()
	if err != nil {
		return 0, err
	}
	d, err := parseSchedule(in)
	if err != nil {
		return 0, err
	}

	var created int
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		list, err := s.createSeries(ctx, tx, d)
		if err != nil {
			return err
		}
		created = len(list)
		return nil
	})
	return created, err
}
