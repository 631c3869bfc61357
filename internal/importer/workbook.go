// Package importer читает файлы импорта расписания в строки для сервиса
package importer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/labportal/internal/service"
	"github.com/xuri/excelize/v2"
)

var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"start_time", "end_time", "lab_id"}

// ReadWorkbook читает первый лист xlsx. Первая строка - заголовки колонок,
// пустые строки пропускаются. Каждая строка хранит свой номер на листе,
// чтобы результат импорта ссылался на файл.
func ReadWorkbook(r io.Reader) ([]service.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	index := map[string]int{}
	for i, name := range rows[0] {
		index[normalizeHeader(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	_, hasDay := index["day"]
	_, hasDate := index["schedule_date"]
	if !hasDay && !hasDate {
		return nil, fmt.Errorf("%w: day or schedule_date", ErrMissingColumn)
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []service.ImportRow
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		out = append(out, service.ImportRow{
			Line:         n + 2,
			Day:          cell(row, "day"),
			ScheduleDate: dateCell(cell(row, "schedule_date")),
			StartTime:    clockCell(cell(row, "start_time")),
			EndTime:      clockCell(cell(row, "end_time")),
			CourseName:   cell(row, "course_name"),
			LecturerName: cell(row, "lecturer_name"),
			LabID:        cell(row, "lab_id"),
			RepeatWeeks:  cell(row, "repeat_weeks"),
		})
	}
	return out, nil
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// dateCell переводит серийную дату Excel в YYYY-MM-DD, текст не меняет
func dateCell(v string) string {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 1 {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(time.DateOnly)
}

// clockCell переводит долю суток Excel в HH:MM, текст не меняет
func clockCell(v string) string {
	frac, err := strconv.ParseFloat(v, 64)
	if err != nil || frac < 0 || frac >= 1 {
		return v
	}
	minutes := int(math.Round(frac * 24 * 60))
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
