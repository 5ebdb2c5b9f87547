// services/import_service.go - Bulk Spreadsheet Import
package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"certvault/models"
	"certvault/utils"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Spreadsheet column headers. Competition name and award date are
// mandatory; everything else is optional.
const (
	ColCompetition = "比赛名称"
	ColDate        = "获奖日期"
	ColLevel       = "赛事级别"
	ColRank        = "奖项等级"
	ColCode        = "证书编号"
	ColRemarks     = "备注"
	ColMembers     = "成员"
	ColAttachments = "附件路径"
)

var requiredColumns = []string{ColCompetition, ColDate, ColLevel, ColRank}

// memberSeparators covers both Chinese and western list punctuation.
var memberSeparators = []rune{'、', ',', '，', ';', '；', '/'}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"2006年01月02日",
	"2006年1月2日",
	"2006-01-02 15:04:05",
}

// errDryRunRollback aborts the outer transaction after a dry run so no
// row ever commits. It is not reported to the caller.
var errDryRunRollback = errors.New("dry run rollback")

const progressEvery = 25

// RowError describes one failed spreadsheet row. Row numbers are
// 1-based file positions including the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	JobID     string     `json:"job_id"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Errors    []RowError `json:"errors,omitempty"`
	DryRun    bool       `json:"dry_run"`
	ErrorFile string     `json:"error_file,omitempty"`
	Elapsed   time.Duration
}

// ProgressFunc receives periodic progress while an import runs.
type ProgressFunc func(processed, total int, remaining time.Duration)

// ImportOptions tunes one import run. AttachmentBase resolves relative
// paths in the attachment column; empty means the file's directory.
type ImportOptions struct {
	DryRun         bool
	AttachmentBase string
	Progress       ProgressFunc
}

// ImportService loads award spreadsheets. Each row commits or fails
// independently inside one outer transaction, so a bad row never takes
// its neighbors down with it.
type ImportService struct {
	db     *gorm.DB
	awards *AwardService
	flags  *FlagService
}

func NewImportService(db *gorm.DB, awards *AwardService, flags *FlagService) *ImportService {
	return &ImportService{db: db, awards: awards, flags: flags}
}

// ================== IMPORT ==================

// ImportFile reads a .csv or .xlsx file and creates one award per data
// row. In dry-run mode every row is validated and then rolled back; no
// award, profile or file copy survives. Failed rows are collected into
// the result and, for real runs, into a sibling error file.
func (s *ImportService) ImportFile(path string, opts ImportOptions) (*ImportResult, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s contains no rows", ErrValidation, filepath.Base(path))
	}

	header := rows[0]
	columns, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	flags, err := s.flags.ListFlags()
	if err != nil {
		return nil, err
	}
	flagColumns := map[int]*models.CustomFlag{}
	for i, cell := range header {
		if f, ok := MatchFlagColumn(cell, flags); ok {
			flagColumns[i] = f
		}
	}

	attachmentBase := opts.AttachmentBase
	if attachmentBase == "" {
		attachmentBase = filepath.Dir(path)
	}

	// Dry runs leave no trace, so no job row is created for them.
	var job *models.ImportJob
	if !opts.DryRun {
		job = &models.ImportJob{
			JobID:    uuid.New().String(),
			Filename: filepath.Base(path),
			Status:   "running",
		}
		if err := s.db.Create(job).Error; err != nil {
			return nil, err
		}
	}

	restore := s.relaxDurability()
	defer restore()

	result := &ImportResult{
		Total:  len(rows) - 1,
		DryRun: opts.DryRun,
	}
	if job != nil {
		result.JobID = job.JobID
	}
	start := time.Now()
	var copiedAll []models.Attachment
	var failedRows [][]string

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		for i, row := range rows[1:] {
			fileRow := i + 2

			input, rowErr := s.buildInput(row, columns, flagColumns, attachmentBase, opts.DryRun)
			if rowErr == nil {
				savepoint := fmt.Sprintf("row_%d", fileRow)
				if err := tx.SavePoint(savepoint).Error; err != nil {
					return err
				}
				_, copied, err := s.awards.CreateTx(tx, *input)
				if err != nil {
					if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
						return rbErr
					}
					s.awards.attachments.RemoveFiles(copied)
					rowErr = err
				} else {
					copiedAll = append(copiedAll, copied...)
					result.Succeeded++
				}
			}

			if rowErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, RowError{Row: fileRow, Message: rowErr.Error()})
				failedRows = append(failedRows, row)
			}

			processed := i + 1
			if opts.Progress != nil && (processed%progressEvery == 0 || processed == result.Total) {
				opts.Progress(processed, result.Total, estimateRemaining(start, processed, result.Total))
			}
		}

		if opts.DryRun {
			return errDryRunRollback
		}
		return nil
	})

	result.Elapsed = time.Since(start)

	if txErr != nil && txErr != errDryRunRollback {
		s.awards.attachments.RemoveFiles(copiedAll)
		if job != nil {
			s.finishJob(job, "failed", txErr.Error())
		}
		return nil, txErr
	}
	if opts.DryRun {
		// The rollback discarded every row; copies were never made.
		return result, nil
	}

	if len(failedRows) > 0 {
		errorFile, err := s.writeErrorFile(path, header, failedRows, result.Errors)
		if err != nil {
			log.Printf("Error file write failed: %v", err)
		} else {
			result.ErrorFile = errorFile
		}
	}

	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	s.finishJob(job, status, joinRowErrors(result.Errors))
	log.Printf("✅ Import %s: %d imported, %d failed in %s", job.JobID, result.Succeeded, result.Failed, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// GetJob looks up one import job by its public id.
func (s *ImportService) GetJob(jobID string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := s.db.Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns recent import jobs, newest first.
func (s *ImportService) ListJobs(limit int) ([]models.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.ImportJob
	err := s.db.Order("id DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// ================== ROW BUILDING ==================

func (s *ImportService) buildInput(row []string, columns map[string]int, flagColumns map[int]*models.CustomFlag, attachmentBase string, dryRun bool) (*CreateAwardInput, error) {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	competition := cell(ColCompetition)
	if competition == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrValidation, ColCompetition)
	}

	date, err := parseDate(cell(ColDate))
	if err != nil {
		return nil, err
	}

	input := &CreateAwardInput{
		CompetitionName: competition,
		AwardDate:       date,
		Level:           cell(ColLevel),
		Rank:            cell(ColRank),
		CertificateCode: cell(ColCode),
		Remarks:         cell(ColRemarks),
	}

	// A name repeated inside one cell is a typo, not a second member.
	for _, name := range utils.UniqueFold(utils.SplitList(cell(ColMembers), memberSeparators...)) {
		input.Members = append(input.Members, NameOnly(name))
	}

	if !dryRun {
		for _, p := range utils.SplitList(cell(ColAttachments), ';', '；', '|') {
			if !filepath.IsAbs(p) {
				p = filepath.Join(attachmentBase, p)
			}
			input.AttachmentSources = append(input.AttachmentSources, p)
		}
	}

	for idx, flag := range flagColumns {
		if idx >= len(row) {
			continue
		}
		if value, ok := ParseFlagCell(row[idx]); ok {
			if input.Flags == nil {
				input.Flags = map[string]bool{}
			}
			input.Flags[flag.Key] = value
		}
	}
	return input, nil
}

func parseDate(cell string) (time.Time, error) {
	if cell == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrValidation, ColDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrValidation, cell)
}

func mapColumns(header []string) (map[string]int, error) {
	columns := map[string]int{}
	for i, cell := range header {
		columns[strings.TrimSpace(cell)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return columns, nil
}

// ================== FILE READING ==================

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrValidation, filepath.Ext(path))
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrValidation)
	}
	return f.GetRows(sheets[0])
}

// ================== HELPERS ==================

// relaxDurability turns off synchronous fsyncs for the bulk run and
// returns a func that restores the previous setting. Crash safety is
// reduced only while the import runs; the journal still keeps the
// database consistent.
func (s *ImportService) relaxDurability() func() {
	var previous int
	if err := s.db.Raw("PRAGMA synchronous").Scan(&previous).Error; err != nil {
		return func() {}
	}
	if err := s.db.Exec("PRAGMA synchronous = OFF").Error; err != nil {
		return func() {}
	}
	return func() {
		if err := s.db.Exec(fmt.Sprintf("PRAGMA synchronous = %d", previous)).Error; err != nil {
			log.Printf("Restoring synchronous pragma failed: %v", err)
		}
	}
}

func estimateRemaining(start time.Time, processed, total int) time.Duration {
	if processed == 0 {
		return 0
	}
	perRow := time.Since(start) / time.Duration(processed)
	return perRow * time.Duration(total-processed)
}

// joinRowErrors concatenates every row error into the job record's
// message, one line per failed row.
func joinRowErrors(rowErrors []RowError) string {
	lines := make([]string, 0, len(rowErrors))
	for _, e := range rowErrors {
		lines = append(lines, fmt.Sprintf("第 %d 行: %s", e.Row, e.Message))
	}
	return strings.Join(lines, "\n")
}

func (s *ImportService) finishJob(job *models.ImportJob, status, message string) {
	if err := s.db.Model(job).Updates(map[string]interface{}{
		"status":  status,
		"message": message,
	}).Error; err != nil {
		log.Printf("Import job %s update failed: %v", job.JobID, err)
	}
}

// writeErrorFile copies the header plus every failed row, with the row
// number and message appended, next to the source file.
func (s *ImportService) writeErrorFile(path string, header []string, failedRows [][]string, rowErrors []RowError) (string, error) {
	ext := filepath.Ext(path)
	errorPath := strings.TrimSuffix(path, ext) + "_errors.csv"

	f, err := os.Create(errorPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(append(append([]string{}, header...), "行号", "错误")); err != nil {
		return "", err
	}
	for i, row := range failedRows {
		record := append(append([]string{}, row...), fmt.Sprintf("%d", rowErrors[i].Row), rowErrors[i].Message)
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return errorPath, writer.Error()
}
