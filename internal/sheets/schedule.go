package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"p5glab/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const scheduleSheetName = "Schedule"

// ScheduleService publishes the lab schedule to a Google spreadsheet that
// lab staff watch. The sheet is a read model; the booking database stays
// authoritative.
type ScheduleService struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewScheduleService builds a Sheets client from a service-account
// credentials file.
func NewScheduleService(credentialsFile, spreadsheetID string) (*ScheduleService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &ScheduleService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads one cell to verify credentials and sharing.
func (s *ScheduleService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, scheduleSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail extracts the account email from a credentials file so
// operators know whom to share the spreadsheet with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// UpdateScheduleSheet clears the schedule sheet and rewrites it with the
// bookings of the given window, one row per booking in start order.
func (s *ScheduleService) UpdateScheduleSheet(ctx context.Context, startDate, endDate time.Time, bookings []*models.Booking, experiments []models.Experiment) error {
	clearRange := scheduleSheetName + "!A:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear schedule sheet: %w", err)
	}

	names := make(map[string]string, len(experiments))
	for _, exp := range experiments {
		names[exp.Key] = exp.Name
	}

	values := buildScheduleRows(startDate, endDate, bookings, names)

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, scheduleSheetName+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update schedule sheet: %w", err)
	}
	return nil
}

func buildScheduleRows(startDate, endDate time.Time, bookings []*models.Booking, names map[string]string) [][]interface{} {
	values := [][]interface{}{
		{fmt.Sprintf("Lab schedule %s - %s", startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))},
		{},
		{"Date", "Start", "End", "Experiment", "User", "Status"},
	}

	for _, b := range bookings {
		name := names[b.ExpKey]
		if name == "" {
			name = b.ExpKey
		}
		values = append(values, []interface{}{
			b.StartTime.Format("2006-01-02"),
			b.StartTime.Format("15:04"),
			b.EndTime.Format("15:04"),
			name,
			b.Username,
			b.Status,
		})
	}
	return values
}
