package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Freeeeeet/labportal/internal/app"
	"github.com/Freeeeeet/labportal/internal/config"
	"github.com/Freeeeeet/labportal/internal/export"
	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/repository"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/Freeeeeet/labportal/internal/service"
)

func main() {
	labID := flag.Int64("lab", 0, "lab id to render from the database")
	date := flag.String("date", "", "any date of the week, YYYY-MM-DD (default: current week)")
	out := flag.String("out", "week.png", "output file")
	demo := flag.Bool("demo", false, "render sample schedules without a database")
	flag.Parse()

	var week time.Time
	if *date != "" {
		d, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -date: %v\n", err)
			os.Exit(2)
		}
		week = d
	}

	var (
		view export.WeekView
		err  error
	)
	if *demo {
		view = demoView(week)
	} else {
		if *labID <= 0 {
			fmt.Fprintln(os.Stderr, "-lab is required unless -demo is set")
			os.Exit(2)
		}
		view, err = loadView(*labID, week)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load schedules: %v\n", err)
			os.Exit(1)
		}
	}

	imageData, err := export.RenderLabWeek(view)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, imageData, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}

	end := view.WeekStart.AddDate(0, 0, 6)
	fmt.Printf("Saved %s\n", *out)
	fmt.Printf("Week: %s - %s\n", view.WeekStart.Format("02.01.2006"), end.Format("02.01.2006"))
	fmt.Printf("Schedules: %d\n", len(view.Schedules))
}

func loadView(labID int64, week time.Time) (export.WeekView, error) {
	cfg, err := config.Load()
	if err != nil {
		return export.WeekView{}, err
	}
	logger, err := app.NewLogger(cfg.Environment, "render_week", cfg.LogLevel)
	if err != nil {
		return export.WeekView{}, err
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := app.NewPool(ctx, cfg.DBDSN, 2, logger)
	if err != nil {
		return export.WeekView{}, err
	}
	defer pool.Close()

	loc, err := cfg.Location()
	if err != nil {
		return export.WeekView{}, err
	}
	store := repository.NewPgStore(pool, logger, cfg.DBTxAttempts)
	labs := service.NewLabService(store, logger)
	schedules := service.NewScheduleService(store, service.Options{Location: loc}, logger)

	lab, err := labs.Get(ctx, labID)
	if err != nil {
		return export.WeekView{}, err
	}
	monday := schedules.WeekOf(week)
	list, err := schedules.ListLabRange(ctx, labID, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		return export.WeekView{}, err
	}
	return export.WeekView{Lab: lab, WeekStart: monday, Schedules: list, Now: time.Now().In(loc)}, nil
}

// demoView собирает тестовую неделю для проверки отрисовки
func demoView(week time.Time) export.WeekView {
	if week.IsZero() {
		week = time.Now()
	}
	monday := scheduling.DateOf(week)
	for monday.Weekday() != time.Monday {
		monday = monday.AddDate(0, 0, -1)
	}

	course := func(s string) *string { return &s }
	at := func(day, fromH, toH int, t model.ScheduleType, name *string) *model.Schedule {
		date := monday.AddDate(0, 0, day)
		return &model.Schedule{
			LabID:      1,
			Weekday:    date.Weekday(),
			Date:       date,
			StartTime:  scheduling.NewClock(fromH, 0),
			EndTime:    scheduling.NewClock(toH, 0),
			Type:       t,
			CourseName: name,
		}
	}

	return export.WeekView{
		Lab:       &model.Lab{ID: 1, Name: "Demo Lab", Status: model.LabStatusAvailable},
		WeekStart: monday,
		Schedules: []*model.Schedule{
			at(0, 9, 10, model.ScheduleTypeLecture, course("Algebra")),
			at(0, 14, 15, model.ScheduleTypeReservation, nil),
			at(1, 10, 12, model.ScheduleTypeLecture, course("Organic Chemistry")),
			at(2, 9, 10, model.ScheduleTypeReservation, nil),
			at(2, 15, 17, model.ScheduleTypeLecture, course("Physics Lab")),
			at(4, 11, 12, model.ScheduleTypeLecture, course("Robotics")),
			at(5, 13, 14, model.ScheduleTypeReservation, nil),
		},
		Now: time.Now(),
	}
}
