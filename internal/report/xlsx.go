package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

// Filename is the download name for a report generated in period.
func Filename(r Report) string {
	return fmt.Sprintf("attendance-report-%s-%s.xlsx", strings.ToLower(r.Period), r.GeneratedAt.Format("2006-01-02"))
}

// WriteXLSX renders r as a single-sheet workbook: a title, the stat tiles,
// then one row per marked student.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{r.Period + " Attendance Report"},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05")},
		{},
		{"Total", "Present", "Absent", "Late"},
		{r.Stats.Total, r.Stats.Present, r.Stats.Absent, r.Stats.Late},
		{},
		{"Username", "Email", "Status", "Marked On"},
	}
	for _, s := range r.Students {
		rows = append(rows, []any{s.Username, s.Email, s.Attendance.Upper(), s.MarkedOn.Format("2006-01-02 15:04")})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "D", 24); err != nil {
		return err
	}
	return f.Write(w)
}

