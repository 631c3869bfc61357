// Package export рисует расписание лаборатории для публикации вне портала
package export

import (
	"bytes"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/Freeeeeet/labportal/internal/model"
	"github.com/Freeeeeet/labportal/internal/scheduling"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	imageWidth      = 1400
	imageHeight     = 900
	headerHeight    = 110
	leftLabelsWidth = 80
	legendWidth     = 140
	dayPaddingX     = 6
	minBlockHeight  = 10.0
	blockRadius     = 6.0
	shadowOffset    = 3.0
	daysInWeek      = 7
	hourPadding     = 1
	defaultMinHour  = 8
	defaultMaxHour  = 18
	maxLabelRunes   = 18
)

const (
	titleFontSize  = 26.0
	dayFontSize    = 22.0
	hourFontSize   = 16.0
	blockFontSize  = 15.0
	legendFontSize = 13.0
)

var (
	bgColor         = color.RGBA{245, 246, 248, 255}
	textColor       = color.RGBA{80, 85, 90, 220}
	hourLabelColor  = color.RGBA{110, 115, 120, 200}
	hourLineColor   = color.NRGBA{150, 150, 150, 255}
	todayBgColor    = color.NRGBA{255, 99, 71, 90}
	evenDayColor    = color.NRGBA{240, 240, 240, 255}
	oddDayColor     = color.NRGBA{226, 226, 226, 255}
	nowLineColor    = color.NRGBA{255, 80, 80, 200}
	lectureColor    = color.RGBA{120, 165, 225, 230}
	reservedColor   = color.RGBA{133, 193, 85, 230}
	blockTextColor  = color.RGBA{20, 24, 28, 230}
	blockShadow     = color.RGBA{0, 0, 0, 20}
	legendItemColor = color.RGBA{70, 74, 78, 220}
)

type fontStyle int

const (
	styleRegular fontStyle = iota
	styleBold
)

var (
	fontsOnce sync.Once
	fonts     map[fontStyle]*opentype.Font
)

func parsedFonts() map[fontStyle]*opentype.Font {
	fontsOnce.Do(func() {
		fonts = map[fontStyle]*opentype.Font{}
		for style, data := range map[fontStyle][]byte{styleRegular: goregular.TTF, styleBold: gobold.TTF} {
			if f, err := opentype.Parse(data); err == nil {
				fonts[style] = f
			}
		}
	})
	return fonts
}

// setFont меняет шрифт, при ошибке разбора остаётся basicfont
func setFont(dc *gg.Context, size float64, style fontStyle) {
	if f := parsedFonts()[style]; f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			dc.SetFontFace(face)
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

type hourRange struct {
	start int
	end   int
	total int
}

// WeekView - входные данные RenderLabWeek
type WeekView struct {
	Lab       *model.Lab
	WeekStart time.Time
	Schedules []*model.Schedule
	// Now отмечает сегодняшний день и текущее время; нулевое значение скрывает их
	Now time.Time
}

// RenderLabWeek рисует PNG-сетку занятий лаборатории с понедельника по
// воскресенье. Занятия вне недели не попадают на картинку.
func RenderLabWeek(v WeekView) ([]byte, error) {
	start := scheduling.DateOf(v.WeekStart)
	for start.Weekday() != time.Monday {
		start = start.AddDate(0, 0, -1)
	}
	end := start.AddDate(0, 0, daysInWeek-1)

	byDay := map[string][]*model.Schedule{}
	var inWeek []*model.Schedule
	for _, s := range v.Schedules {
		if s.Date.Before(start) || s.Date.After(end) {
			continue
		}
		key := s.Date.Format(time.DateOnly)
		byDay[key] = append(byDay[key], s)
		inWeek = append(inWeek, s)
	}
	hours := hourSpan(inWeek)

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(bgColor)
	dc.Clear()

	dayWidth := (imageWidth - leftLabelsWidth - legendWidth) / daysInWeek
	dayHeight := imageHeight - headerHeight
	cellHeight := float64(dayHeight) / float64(hours.total)

	var today time.Time
	if !v.Now.IsZero() {
		today = scheduling.DateOf(v.Now)
	}

	drawHeader(dc, v.Lab, start, end)
	drawHourLabels(dc, hours, cellHeight)
	for i := 0; i < daysInWeek; i++ {
		date := start.AddDate(0, 0, i)
		x := float64(leftLabelsWidth + i*dayWidth)
		drawDay(dc, date, i, date.Equal(today), x, dayWidth, dayHeight, hours, cellHeight)
		for _, s := range byDay[date.Format(time.DateOnly)] {
			drawBlock(dc, s, x, dayWidth, hours, cellHeight)
		}
	}
	if !today.IsZero() && !today.Before(start) && !today.After(end) {
		drawNowLine(dc, v.Now, hours, cellHeight, dayWidth)
	}
	drawLegend(dc, dayWidth)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func hourSpan(list []*model.Schedule) hourRange {
	minHour, maxHour := 24, 0
	for _, s := range list {
		endH := s.EndTime.Hour()
		if s.EndTime.Minute() > 0 {
			endH++
		}
		minHour = min(minHour, s.StartTime.Hour())
		maxHour = max(maxHour, endH)
	}
	if minHour == 24 {
		minHour, maxHour = defaultMinHour, defaultMaxHour
	}

	start := max(minHour-hourPadding, 0)
	end := min(maxHour+hourPadding, 24)
	return hourRange{start: start, end: end, total: end - start}
}

func drawHeader(dc *gg.Context, lab *model.Lab, start, end time.Time) {
	title := fmt.Sprintf("%s - %s", start.Format("2 Jan"), end.Format("2 Jan 2006"))
	if lab != nil {
		title = lab.Name + ", " + title
	}

	setFont(dc, titleFontSize, styleBold)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(title, float64(leftLabelsWidth), float64(headerHeight)/4, 0, 0.5)
}

func drawHourLabels(dc *gg.Context, hours hourRange, cellHeight float64) {
	setFont(dc, hourFontSize, styleRegular)
	dc.SetColor(hourLabelColor)

	for i := 0; i <= hours.total; i++ {
		y := float64(headerHeight) + float64(i)*cellHeight
		label := scheduling.NewClock((hours.start+i)%24, 0).String()
		dc.DrawStringAnchored(label, float64(leftLabelsWidth)-10, y, 1, 0.5)
	}
}

func drawDay(dc *gg.Context, date time.Time, index int, isToday bool, x float64, dayWidth, dayHeight int, hours hourRange, cellHeight float64) {
	y := float64(headerHeight)

	switch {
	case isToday:
		dc.SetColor(todayBgColor)
	case index%2 == 0:
		dc.SetColor(evenDayColor)
	default:
		dc.SetColor(oddDayColor)
	}
	dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
	dc.Fill()

	setFont(dc, dayFontSize, styleBold)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(date.Format("02.01"), x+float64(dayWidth)/2, y, 0.5, -1.2)
	dc.DrawStringAnchored(date.Weekday().String()[:3], x+float64(dayWidth)/2, y, 0.5, -0.2)

	dc.SetLineWidth(0.3)
	dc.SetColor(hourLineColor)
	for i := 0; i <= hours.total; i++ {
		hy := y + float64(i)*cellHeight
		dc.DrawLine(x, hy, x+float64(dayWidth), hy)
		dc.Stroke()
	}
}

func drawBlock(dc *gg.Context, s *model.Schedule, x float64, dayWidth int, hours hourRange, cellHeight float64) {
	startH := float64(s.StartTime.Hour()) + float64(s.StartTime.Minute())/60
	endH := float64(s.EndTime.Hour()) + float64(s.EndTime.Minute())/60

	y := float64(headerHeight) + (startH-float64(hours.start))*cellHeight
	height := max((endH-startH)*cellHeight, minBlockHeight)
	width := float64(dayWidth) - float64(dayPaddingX*2)
	left := x + float64(dayPaddingX)

	fill := blockColor(s.Type)

	dc.SetColor(blockShadow)
	dc.DrawRoundedRectangle(left+shadowOffset, y+2+shadowOffset, width, height-4, blockRadius)
	dc.Fill()

	dc.SetColor(fill)
	dc.DrawRoundedRectangle(left, y+2, width, height-4, blockRadius)
	dc.Fill()

	dc.SetColor(darken(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(left, y+2, width, height-4, blockRadius)
	dc.Stroke()

	setFont(dc, blockFontSize, styleBold)
	dc.SetColor(blockTextColor)
	textX, textY := left+6, y+18
	dc.DrawStringAnchored(s.StartTime.String()+"-"+s.EndTime.String(), textX, textY, 0, 0)

	if height > 30 {
		setFont(dc, blockFontSize-2, styleRegular)
		dc.DrawStringAnchored(truncate(s.Title(), maxLabelRunes), textX, textY+16, 0, 0)
	}
	if height > 48 && s.LecturerName != nil && *s.LecturerName != "" {
		dc.DrawStringAnchored(truncate(*s.LecturerName, maxLabelRunes), textX, textY+32, 0, 0)
	}
}

func blockColor(t model.ScheduleType) color.RGBA {
	if t == model.ScheduleTypeReservation {
		return reservedColor
	}
	return lectureColor
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func drawNowLine(dc *gg.Context, now time.Time, hours hourRange, cellHeight float64, dayWidth int) {
	h := float64(now.Hour()) + float64(now.Minute())/60
	if h < float64(hours.start) || h > float64(hours.end) {
		return
	}
	y := float64(headerHeight) + (h-float64(hours.start))*cellHeight
	dc.SetColor(nowLineColor)
	dc.SetLineWidth(2)
	dc.DrawLine(float64(leftLabelsWidth), y, float64(leftLabelsWidth+daysInWeek*dayWidth), y)
	dc.Stroke()
}

func drawLegend(dc *gg.Context, dayWidth int) {
	x := float64(leftLabelsWidth + daysInWeek*dayWidth + 12)
	y := float64(imageHeight) - 80

	items := []struct {
		label string
		clr   color.Color
	}{
		{"Lecture", lectureColor},
		{"Reservation", reservedColor},
	}

	const boxW, boxH = 20.0, 14.0
	setFont(dc, legendFontSize, styleRegular)
	for _, item := range items {
		dc.SetColor(item.clr)
		dc.DrawRoundedRectangle(x, y, boxW, boxH, 3)
		dc.Fill()

		dc.SetColor(legendItemColor)
		dc.DrawStringAnchored(item.label, x+boxW+8, y+boxH/2+1, 0, 0.2)
		y += boxH + 14
	}
}
