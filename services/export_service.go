// services/export_service.go - Spreadsheet Export
package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportService writes award lists back out in the same column layout
// the importer accepts, so exported files round-trip.
type ExportService struct {
	awards *AwardService
	flags  *FlagService
}

func NewExportService(awards *AwardService, flags *FlagService) *ExportService {
	return &ExportService{awards: awards, flags: flags}
}

// Export writes the filtered awards to path; the extension picks the
// format (.csv or .xlsx). Returns the number of rows written.
func (s *ExportService) Export(path string, filter AwardFilter) (int, error) {
	awards, err := s.awards.List(filter)
	if err != nil {
		return 0, err
	}

	flags, err := s.flags.ListFlags()
	if err != nil {
		return 0, err
	}
	enabled := flags[:0:0]
	for _, f := range flags {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}

	ids := make([]uint, len(awards))
	for i, a := range awards {
		ids[i] = a.ID
	}
	flagValues, err := s.flags.GetFlagsForAwards(ids)
	if err != nil {
		return 0, err
	}

	header := []string{ColCompetition, ColDate, ColLevel, ColRank, ColCode, ColRemarks, ColMembers, "附件数量"}
	for i := range enabled {
		header = append(header, FlagColumnHeader(&enabled[i]))
	}

	rows := make([][]string, 0, len(awards))
	for _, a := range awards {
		row := []string{
			a.CompetitionName,
			a.AwardDate.Format("2006-01-02"),
			a.Level,
			a.Rank,
			a.CertificateCode,
			a.Remarks,
			strings.Join(a.MemberNames(), "、"),
			fmt.Sprintf("%d", len(a.Attachments)),
		}
		for _, f := range enabled {
			value := f.DefaultValue
			if effective, ok := flagValues[a.ID]; ok {
				value = effective[f.Key]
			}
			if value {
				row = append(row, "是")
			} else {
				row = append(row, "否")
			}
		}
		rows = append(rows, row)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = writeCSV(path, header, rows)
	case ".xlsx":
		err = writeXLSX(path, header, rows)
	default:
		return 0, fmt.Errorf("%w: unsupported export format %s", ErrValidation, filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// WriteTemplate writes an empty import template with the current flag
// columns included.
func (s *ExportService) WriteTemplate(path string) error {
	flags, err := s.flags.ListFlags()
	if err != nil {
		return err
	}

	header := []string{ColCompetition, ColDate, ColLevel, ColRank, ColCode, ColRemarks, ColMembers, ColAttachments}
	for i := range flags {
		if flags[i].Enabled {
			header = append(header, FlagColumnHeader(&flags[i]))
		}
	}

	example := []string{"全国大学生数学建模竞赛", "2025-09-12", "国家级", "一等奖", "CERT-2025-001", "", "张三、李四", ""}
	for len(example) < len(header) {
		example = append(example, "")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(path, header, [][]string{example})
	case ".xlsx":
		return writeXLSX(path, header, [][]string{example})
	default:
		return fmt.Errorf("%w: unsupported template format %s", ErrValidation, filepath.Ext(path))
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeXLSX(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	write := func(rowIdx int, values []string) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
