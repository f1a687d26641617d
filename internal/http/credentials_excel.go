package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"secretariat-data/internal/domain"

	"github.com/xuri/excelize/v2"
)

const credentialsSheet = "Credentials"

// CredentialsExportHeader 导出表头
var CredentialsExportHeader = []string{
	"Kind",
	"Source Ref",
	"Display Name",
	"Username",
	"Password",
	"Active",
	"Pinned",
	"Updated At",
}

var credentialsColumnWidths = []float64{
	16, // Kind
	12, // Source Ref
	30, // Display Name
	24, // Username
	16, // Password
	10, // Active
	10, // Pinned
	20, // Updated At
}

// GenerateCredentialsExport 生成凭据导出 Excel 文件，rows 为空时只生成表头
func GenerateCredentialsExport(rows []*domain.Credential) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close happens at the end

	index, err := f.NewSheet(credentialsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range CredentialsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(credentialsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(credentialsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, width := range credentialsColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(credentialsSheet, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, c := range rows {
		row := rowIdx + 2 // 第1行是表头
		values := []any{
			string(c.SourceKind),
			c.SourceRef,
			c.DisplayName,
			c.Username,
			c.Password,
			yesNo(c.Active),
			yesNo(c.Pinned),
			formatTime(c.UpdatedAt),
		}
		for colIdx, value := range values {
			if value == "" {
				continue
			}
			if err := setCellValue(f, credentialsSheet, colIdx+1, row, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(credentialsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
