// Package report builds inspection status workbooks and stores them.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vhvplatform/go-inspection-alert-service/internal/classifier"
	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/errors"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

const (
	sheetName       = "Inspections"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []interface{}{"Kind", "ID", "Item", "Facility", "Due Date", "Days Until Due", "State", "Status"}

// ItemSource lists live items of one category
type ItemSource interface {
	ListItems(ctx context.Context, kind domain.ItemKind) ([]domain.TrackableItem, error)
}

// ArtifactStore keeps generated reports and returns where they were stored
type ArtifactStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

type row struct {
	item  domain.TrackableItem
	class classifier.Classification
}

// ExcelGenerator produces .xlsx reports. Without a store the workbook bytes
// are returned in the artifact.
type ExcelGenerator struct {
	items   ItemSource
	store   ArtifactStore
	horizon int
	log     *logger.Logger
	now     func() time.Time
}

// NewExcelGenerator creates a new report generator. store may be nil.
func NewExcelGenerator(items ItemSource, store ArtifactStore, horizonDays int, log *logger.Logger) *ExcelGenerator {
	if horizonDays <= 0 {
		horizonDays = classifier.DefaultHorizonDays
	}
	return &ExcelGenerator{
		items:   items,
		store:   store,
		horizon: horizonDays,
		log:     log,
		now:     time.Now,
	}
}

// Generate builds the report of the given type
func (g *ExcelGenerator) Generate(ctx context.Context, reportType domain.ReportType) (*domain.ReportArtifact, error) {
	if !reportType.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown report type %q", reportType), nil)
	}

	now := g.now()
	rows, err := g.collect(ctx, now, reportType)
	if err != nil {
		return nil, err
	}

	content, err := g.render(reportType, now, rows)
	if err != nil {
		return nil, errors.NewInternalError("failed to render report", err)
	}

	artifact := &domain.ReportArtifact{
		Type:        reportType,
		FileName:    fmt.Sprintf("%s-%s.xlsx", reportType, now.UTC().Format("20060102T150405Z")),
		ContentType: xlsxContentType,
		Size:        int64(len(content)),
		ItemCount:   len(rows),
		GeneratedAt: now,
	}

	if g.store == nil {
		artifact.Content = content
		return artifact, nil
	}

	location, err := g.store.Put(ctx, string(reportType)+"/"+artifact.FileName, xlsxContentType, content)
	if err != nil {
		return nil, errors.NewInternalError("failed to store report", err)
	}
	artifact.Location = location
	return artifact, nil
}

func (g *ExcelGenerator) collect(ctx context.Context, now time.Time, reportType domain.ReportType) ([]row, error) {
	kinds := domain.ItemKinds
	switch reportType {
	case domain.ReportTypeExtinguishers:
		kinds = []domain.ItemKind{domain.ItemKindExtinguisher}
	case domain.ReportTypeEquipment:
		kinds = []domain.ItemKind{domain.ItemKindEquipment}
	case domain.ReportTypeFacilities:
		kinds = []domain.ItemKind{domain.ItemKindFacility}
	}

	var rows []row
	for _, kind := range kinds {
		items, err := g.items.ListItems(ctx, kind)
		if err != nil {
			return nil, errors.NewDataSourceError(fmt.Sprintf("failed to load %s items", kind), err)
		}

		for _, item := range items {
			c := classifier.ClassifyItem(now, item, g.horizon)
			if reportType == domain.ReportTypeExpired && c.State != classifier.StateExpired {
				continue
			}
			if reportType == domain.ReportTypeUpcoming && c.State != classifier.StateUpcoming {
				continue
			}
			rows = append(rows, row{item: item, class: c})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].item.DueDate().Before(rows[j].item.DueDate())
	})
	return rows, nil
}

func (g *ExcelGenerator) render(reportType domain.ReportType, now time.Time, rows []row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			g.log.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Inspection report (%s)", reportType),
		Created: now.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			string(r.item.Kind()),
			r.item.ItemID(),
			r.item.Label(),
			r.item.FacilityID(),
			r.item.DueDate().Format("2006-01-02"),
			r.class.DaysUntilDue,
			string(r.class.State),
			string(r.item.ItemStatus()),
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
