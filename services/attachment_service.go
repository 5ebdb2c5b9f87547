// services/attachment_service.go - Attachment File Lifecycle
package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"certvault/models"
	"certvault/utils"

	"gorm.io/gorm"
)

// trashDir is the subtree parallel to the active award folders where
// soft-deleted files live until restored or purged.
const trashDir = "trash"

// AttachmentService manages certificate files and their metadata rows.
// Metadata is the source of truth: a missing physical file never blocks
// a metadata transition, but every delete/restore attempts the
// corresponding file move best-effort.
type AttachmentService struct {
	db   *gorm.DB
	root string
}

func NewAttachmentService(db *gorm.DB, root string) *AttachmentService {
	return &AttachmentService{db: db, root: root}
}

// Root returns the active attachment root directory.
func (s *AttachmentService) Root() string {
	return s.root
}

// EnsureRoot creates the active and trash roots if missing.
func (s *AttachmentService) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.root, trashDir), 0o755)
}

// ================== SAVE ==================

// Save copies each source file into the award's folder and persists a
// metadata row per copy, inside the caller's transaction. Missing
// sources and content the award already stores (same hash and size)
// are logged and skipped, never fatal. Returned attachments
// carry their stored relative paths so a caller that later rolls back
// can undo the copies with RemoveFiles.
func (s *AttachmentService) Save(tx *gorm.DB, awardID uint, label string, sources []string) ([]models.Attachment, error) {
	if tx == nil {
		tx = s.db
	}
	if err := s.EnsureRoot(); err != nil {
		return nil, err
	}

	folder := filepath.Join(s.root, awardFolder(awardID))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}

	var saved []models.Attachment
	index := 0
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			log.Printf("Attachment %s not found, skipped", src)
			continue
		}

		hash, err := HashFile(src)
		if err != nil {
			s.RemoveFiles(saved)
			return nil, fmt.Errorf("hash %s: %w", src, err)
		}

		dup, err := s.hasDuplicate(tx, hash, info.Size(), awardID)
		if err != nil {
			s.RemoveFiles(saved)
			return nil, err
		}
		if dup {
			log.Printf("Attachment %s already stored for award %d, skipped", src, awardID)
			continue
		}
		index++

		safeName := utils.SanitizeFilename(
			fmt.Sprintf("%s-attachment%02d%s", label, index, filepath.Ext(src)),
		)
		dest, err := ensureUniquePath(folder, safeName)
		if err != nil {
			s.RemoveFiles(saved)
			return nil, err
		}
		if err := copyFile(src, dest); err != nil {
			s.RemoveFiles(saved)
			return nil, fmt.Errorf("copy %s: %w", src, err)
		}

		rel, err := filepath.Rel(s.root, dest)
		if err != nil {
			s.RemoveFiles(saved)
			return nil, err
		}

		attachment := models.Attachment{
			AwardID:      awardID,
			StoredName:   filepath.Base(dest),
			OriginalName: filepath.Base(src),
			RelativePath: filepath.ToSlash(rel),
			FileHash:     hash,
			FileSize:     info.Size(),
		}
		if err := tx.Create(&attachment).Error; err != nil {
			s.RemoveFiles(append(saved, attachment))
			return nil, err
		}
		saved = append(saved, attachment)
	}
	return saved, nil
}

// RemoveFiles unlinks the physical files of the given attachments,
// ignoring ones already gone. Used to undo copies after a rollback.
func (s *AttachmentService) RemoveFiles(attachments []models.Attachment) {
	for _, a := range attachments {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(a.RelativePath))); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Error removing attachment file %s: %v", a.RelativePath, err)
		}
	}
}

// ================== SOFT DELETE / RESTORE ==================

// pendingMove is a physical file relocation decided inside a
// transaction and performed after it commits.
type pendingMove struct {
	src  string
	dest string
}

// MarkDeleted moves each attachment's file into the trash subtree and
// flags the row. Already-deleted ids are skipped.
func (s *AttachmentService) MarkDeleted(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.EnsureRoot(); err != nil {
		return err
	}

	var moves []pendingMove
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		moves, err = s.markDeletedTx(tx, ids)
		return err
	})
	if err != nil {
		return err
	}
	s.applyMoves(moves)
	return nil
}

// markDeletedTx flags the rows and rewrites their relative paths to the
// trash subtree inside the caller's transaction, returning the file
// moves to perform once it commits. Metadata is the source of truth:
// the rows land in the trash even when a later move fails.
func (s *AttachmentService) markDeletedTx(tx *gorm.DB, ids []uint) ([]pendingMove, error) {
	var attachments []models.Attachment
	if err := tx.Where("id IN ?", ids).Find(&attachments).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var moves []pendingMove
	for i := range attachments {
		a := &attachments[i]
		if a.Deleted {
			continue
		}

		src := filepath.Join(s.root, filepath.FromSlash(a.RelativePath))
		destDir := filepath.Join(s.root, trashDir, awardFolder(a.AwardID))
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, err
		}
		dest, err := ensureUniquePath(destDir, filepath.Base(src))
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(s.root, dest)
		if err != nil {
			return nil, err
		}

		if err := tx.Model(a).Updates(map[string]interface{}{
			"deleted":       true,
			"deleted_at":    now,
			"relative_path": filepath.ToSlash(rel),
		}).Error; err != nil {
			return nil, err
		}
		moves = append(moves, pendingMove{src: src, dest: dest})
	}
	return moves, nil
}

// applyMoves performs the physical relocations, best-effort.
func (s *AttachmentService) applyMoves(moves []pendingMove) {
	for _, m := range moves {
		moveFile(m.src, m.dest)
	}
}

// Restore moves each attachment's file back into the award's active
// folder and clears the flag. Ids not currently deleted are skipped.
func (s *AttachmentService) Restore(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.EnsureRoot(); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var attachments []models.Attachment
		if err := tx.Where("id IN ?", ids).Find(&attachments).Error; err != nil {
			return err
		}

		for i := range attachments {
			a := &attachments[i]
			if !a.Deleted {
				continue
			}

			src := filepath.Join(s.root, filepath.FromSlash(a.RelativePath))
			destDir := filepath.Join(s.root, awardFolder(a.AwardID))
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return err
			}
			dest, err := ensureUniquePath(destDir, filepath.Base(src))
			if err != nil {
				return err
			}

			newRel := a.RelativePath
			if moveFile(src, dest) {
				rel, err := filepath.Rel(s.root, dest)
				if err != nil {
					return err
				}
				newRel = filepath.ToSlash(rel)
			}

			if err := tx.Model(a).Updates(map[string]interface{}{
				"deleted":       false,
				"deleted_at":    nil,
				"relative_path": newRel,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ================== PURGE ==================

// Purge unlinks files best-effort and deletes the metadata rows for the
// given soft-deleted ids; with no ids it purges everything in the
// trash. Returns the number of rows removed.
func (s *AttachmentService) Purge(ids []uint) (int, error) {
	removed := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Where("deleted = ?", true)
		if len(ids) > 0 {
			query = query.Where("id IN ?", ids)
		}

		var attachments []models.Attachment
		if err := query.Find(&attachments).Error; err != nil {
			return err
		}

		for i := range attachments {
			a := &attachments[i]
			path := filepath.Join(s.root, filepath.FromSlash(a.RelativePath))
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Printf("Error unlinking %s: %v", a.RelativePath, err)
			}
			if err := tx.Delete(a).Error; err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PurgeForAward removes every attachment row (active or deleted) for
// one award inside the caller's transaction, unlinking files
// best-effort. Used by permanent award deletion.
func (s *AttachmentService) PurgeForAward(tx *gorm.DB, awardID uint) (int, error) {
	if tx == nil {
		tx = s.db
	}

	var attachments []models.Attachment
	if err := tx.Where("award_id = ?", awardID).Find(&attachments).Error; err != nil {
		return 0, err
	}

	removed := 0
	for i := range attachments {
		a := &attachments[i]
		path := filepath.Join(s.root, filepath.FromSlash(a.RelativePath))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Error unlinking %s: %v", a.RelativePath, err)
		}
		if err := tx.Delete(a).Error; err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ================== QUERIES ==================

// HasDuplicate reports whether an active attachment with the same
// content hash and size already exists, optionally scoped to one award
// (awardID 0 checks across all awards). Callers use it to reject
// redundant uploads before Save.
func (s *AttachmentService) HasDuplicate(hash string, size int64, awardID uint) (bool, error) {
	return s.hasDuplicate(s.db, hash, size, awardID)
}

// hasDuplicate runs the dedup query on the given handle so Save can see
// rows created earlier in the same transaction.
func (s *AttachmentService) hasDuplicate(handle *gorm.DB, hash string, size int64, awardID uint) (bool, error) {
	query := handle.Model(&models.Attachment{}).
		Where("file_hash = ? AND file_size = ? AND deleted = ?", hash, size, false)
	if awardID != 0 {
		query = query.Where("award_id = ?", awardID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListActive returns the active attachments of one award.
func (s *AttachmentService) ListActive(awardID uint) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := s.db.Where("award_id = ? AND deleted = ?", awardID, false).
		Order("id ASC").
		Find(&attachments).Error
	return attachments, err
}

// ListDeleted returns every soft-deleted attachment, oldest first.
func (s *AttachmentService) ListDeleted() ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := s.db.Where("deleted = ?", true).
		Order("deleted_at ASC").
		Find(&attachments).Error
	return attachments, err
}

// AbsolutePath resolves an attachment's stored path against the root.
func (s *AttachmentService) AbsolutePath(a *models.Attachment) string {
	return filepath.Join(s.root, filepath.FromSlash(a.RelativePath))
}

// ================== HELPERS ==================

func awardFolder(awardID uint) string {
	return fmt.Sprintf("award_%d", awardID)
}

// HashFile computes the sha256 content hash used for dedup checks.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ensureUniquePath appends _1, _2, ... to the stem until the name is
// free inside folder.
func ensureUniquePath(folder, filename string) (string, error) {
	dest := filepath.Join(folder, filename)
	ext := filepath.Ext(filename)
	stem := filename[:len(filename)-len(ext)]

	for counter := 1; ; counter++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			return dest, nil
		} else if err != nil {
			return "", err
		}
		dest = filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// moveFile renames src to dest and reports success. A missing source
// is logged, not an error; the metadata transition proceeds either way.
func moveFile(src, dest string) bool {
	if err := os.Rename(src, dest); err != nil {
		log.Printf("Attachment file move %s -> %s failed: %v", src, dest, err)
		return false
	}
	return true
}
