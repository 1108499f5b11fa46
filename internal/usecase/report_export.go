package usecase

import (
	"context"
	"fmt"
	"time"

	"funnelreport/internal/domain"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Report"

// identityColumns lists the row label fields emitted for each grouping.
func identityColumns(groupBy domain.GroupBy) []string {
	switch groupBy {
	case domain.GroupByCampaign:
		return []string{"campaignId", "campaignName"}
	case domain.GroupByAdSet:
		return []string{"campaignId", "campaignName", "adSetId", "adSetName"}
	default:
		return []string{"campaignId", "campaignName", "adSetId", "adSetName", "adId", "adName", "creativeId"}
	}
}

// Export renders the report as an XLSX workbook and returns its bytes with a
// suggested file name.
func (s *ReportService) Export(ctx context.Context, req domain.ReportRequest) ([]byte, string, error) {
	result, err := s.Generate(ctx, req)
	if err != nil {
		return nil, "", err
	}

	data, err := renderWorkbook(result)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render report workbook: %w", err)
	}

	name := fmt.Sprintf("report_%s_%s_%s_%s.xlsx", req.ClientID, result.GroupBy, req.Filters.StartDate, req.Filters.EndDate)
	return data, name, nil
}

func renderWorkbook(result *domain.ReportResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}

	headers := identityColumns(result.GroupBy)
	for _, metric := range result.Columns {
		headers = append(headers, string(metric))
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(reportSheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, row := range result.Rows {
		values := make([]any, len(headers))
		for j, h := range headers {
			values[j] = cellValue(row[h])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Performance report",
		Created: result.GeneratedAt.Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cellValue leaves uncomputable metrics blank.
func cellValue(v any) any {
	switch val := v.(type) {
	case *float64:
		if val == nil {
			return nil
		}
		return *val
	case nil:
		return nil
	default:
		return val
	}
}
