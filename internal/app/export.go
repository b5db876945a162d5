package app

import (
	"encoding/base64"
	"fmt"

	"github.com/xuri/excelize/v2"

	"mycareerbox/internal/model"
)

const (
	ExportSheet       = "Records"
	ExportFilename    = "applications.xlsx"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportColumns = []interface{}{
	"Company", "Position", "URL", "Contact", "Job Description", "Status", "Date", "Resume",
}

// ExportWorkbook writes one row per record, in the order given, below a
// header row.
func ExportWorkbook(records []model.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet failed: %w", err)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &exportColumns); err != nil {
		return nil, fmt.Errorf("write header failed: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.Company,
			r.Position,
			r.URL,
			r.Contact,
			r.JobDescription,
			string(r.Status),
			r.Date.Format(model.DateLayout),
			r.ResumeFilename,
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d failed: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook failed: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportDataURI encodes the workbook inline so the page can offer it as a
// download link without a second request.
func ExportDataURI(records []model.Record) (string, error) {
	data, err := ExportWorkbook(records)
	if err != nil {
		return "", err
	}
	return "data:" + ExportContentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
