package httpapi

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

var sampleExportHeader = []string{
	"Sequence",
	"Timestamp",
	"DataItem",
	"Type",
	"Value",
}

// RenderSampleXLSX projects a sampleWindow result into a spreadsheet,
// one row per observation, for offline MES reporting
// (SPEC_FULL.md §4.5).
func RenderSampleXLSX(observations []model.Observation) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Sample"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("httpapi: creating sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("httpapi: creating header style: %w", err)
	}

	for col, header := range sampleExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("httpapi: converting coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("httpapi: setting header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("httpapi: setting header style: %w", err)
		}
	}

	for i, o := range observations {
		row := i + 2
		values := []interface{}{o.Sequence, o.Time, o.DataItemName, o.Type, valueText(o.Value)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("httpapi: converting coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("httpapi: setting cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, Split: false, XSplit: 0, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("httpapi: freezing panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("httpapi: writing spreadsheet: %w", err)
	}
	f.Close()
	return buf.Bytes(), nil
}
