package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platemetrics/analytics_backend/utils"
	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

const exportURLTTL = 15 * time.Minute

func buildWorkbook(headings []string, data []ExcelExporter) (*excelize.File, error) {

	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	// Add headers
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data
	rowNo := 2
	for _, d := range data {
		col := 'A'
		for _, value := range d.GetCellValues() {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}

	return f, nil
}

// exportWorkbook uploads the workbook to the report bucket and hands back a
// short-lived download URL. The object itself stays private.
func exportWorkbook(ctx context.Context, f *excelize.File, objectName string) (*utils.SignedDownload, error) {

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}

	if err := utils.UploadFileToGCS(ctx, objectName, buf); err != nil {
		return nil, err
	}

	return utils.SignDownload(ctx, objectName, exportURLTTL)
}

func ExportDailySalesXlsx(ctx context.Context, locationId *int, fromDate string, toDate string) (*utils.SignedDownload, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	records, err := GetDailySalesReport(ctx, locationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	data := make([]ExcelExporter, 0, len(records))
	for _, r := range records {
		data = append(data, r)
	}

	f, err := buildWorkbook(dailySalesHeadings, data)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("exports/%s/dailySales_%s_%s_%s.xlsx", orgId, fromDate, toDate, utils.GenerateUniqueFilename())
	return exportWorkbook(ctx, f, objectName)
}

func ExportDaypartSalesXlsx(ctx context.Context, locationId *int, fromDate string, toDate string) (*utils.SignedDownload, error) {

	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return nil, errors.New("org id is required")
	}

	records, err := GetDaypartSalesReport(ctx, locationId, fromDate, toDate)
	if err != nil {
		return nil, err
	}

	data := make([]ExcelExporter, 0, len(records))
	for _, r := range records {
		data = append(data, r)
	}

	f, err := buildWorkbook(daypartSalesHeadings, data)
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("exports/%s/daypartSales_%s_%s_%s.xlsx", orgId, fromDate, toDate, utils.GenerateUniqueFilename())
	return exportWorkbook(ctx, f, objectName)
}
