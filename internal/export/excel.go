package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"p5glab/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

// Exporter renders booking ranges to xlsx files for lab reporting.
type Exporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, logger: logger}
}

// ExportBookings writes one row per booking for the given window and returns
// the path of the created file.
func (e *Exporter) ExportBookings(startDate, endDate time.Time, bookings []*models.Booking, experiments []models.Experiment) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	names := make(map[string]string, len(experiments))
	for _, exp := range experiments {
		names[exp.Key] = exp.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Lab bookings %s - %s",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))
	_ = f.MergeCell(sheetName, "A1", "F1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Date", "Start", "End", "Experiment", "User", "Status"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 3
		name := names[b.ExpKey]
		if name == "" {
			name = b.ExpKey
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), b.StartTime.Format("2006-01-02"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), b.StartTime.Format("15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), b.EndTime.Format("15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), name)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), b.Username)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), b.Status)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "B", "C", 8)
	_ = f.SetColWidth(sheetName, "D", "D", 25)
	_ = f.SetColWidth(sheetName, "E", "E", 18)
	_ = f.SetColWidth(sheetName, "F", "F", 10)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save export file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("export file created")
	return filePath, nil
}
