// handlers/imports.go
package handlers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"certvault/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ================== PROGRESS HUB ==================

// ProgressEvent is one websocket frame of import progress.
type ProgressEvent struct {
	UploadID    string                 `json:"upload_id"`
	Processed   int                    `json:"processed"`
	Total       int                    `json:"total"`
	RemainingMS int64                  `json:"remaining_ms"`
	Done        bool                   `json:"done"`
	Error       string                 `json:"error,omitempty"`
	Result      *services.ImportResult `json:"result,omitempty"`
}

// progressHub fans import progress out to websocket subscribers. The
// latest event per upload is retained so late subscribers catch up.
type progressHub struct {
	mu     sync.Mutex
	subs   map[string][]*websocket.Conn
	latest map[string]*ProgressEvent
}

var importHub = &progressHub{
	subs:   map[string][]*websocket.Conn{},
	latest: map[string]*ProgressEvent{},
}

func (h *progressHub) publish(event *ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[event.UploadID] = event
	for _, conn := range h.subs[event.UploadID] {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
		}
	}
	if event.Done {
		for _, conn := range h.subs[event.UploadID] {
			conn.Close()
		}
		delete(h.subs, event.UploadID)
		// Keep the final event an hour for reconnects.
		go func(id string) {
			time.Sleep(time.Hour)
			h.mu.Lock()
			delete(h.latest, id)
			h.mu.Unlock()
		}(event.UploadID)
	}
}

func (h *progressHub) subscribe(uploadID string, conn *websocket.Conn) (caughtUp bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if event, ok := h.latest[uploadID]; ok {
		if err := conn.WriteJSON(event); err != nil || event.Done {
			return true
		}
	}
	h.subs[uploadID] = append(h.subs[uploadID], conn)
	return false
}

func (h *progressHub) unsubscribe(uploadID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subs[uploadID]
	for i, c := range conns {
		if c == conn {
			h.subs[uploadID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
}

// ================== HANDLERS ==================

// UploadImport accepts a spreadsheet and runs the import in the
// background. Progress streams over /ws/imports/:uploadId; the final
// frame carries the full result.
func UploadImport(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Missing file upload"})
	}

	dryRun := c.FormValue("dry_run") == "true" || c.Query("dry_run") == "true"

	tempDir, err := os.MkdirTemp("", "certvault-import-*")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to stage upload"})
	}
	tempPath := filepath.Join(tempDir, filepath.Base(file.Filename))
	if err := c.SaveFile(file, tempPath); err != nil {
		os.RemoveAll(tempDir)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to stage upload"})
	}

	uploadID := uuid.New().String()
	go runImport(uploadID, tempPath, tempDir, dryRun)

	return c.Status(202).JSON(fiber.Map{
		"upload_id": uploadID,
		"dry_run":   dryRun,
	})
}

func runImport(uploadID, path, tempDir string, dryRun bool) {
	defer os.RemoveAll(tempDir)

	result, err := importService.ImportFile(path, services.ImportOptions{
		DryRun: dryRun,
		Progress: func(processed, total int, remaining time.Duration) {
			importHub.publish(&ProgressEvent{
				UploadID:    uploadID,
				Processed:   processed,
				Total:       total,
				RemainingMS: remaining.Milliseconds(),
			})
		},
	})
	if err != nil {
		log.Printf("❌ Import %s failed: %v", uploadID, err)
		importHub.publish(&ProgressEvent{UploadID: uploadID, Done: true, Error: err.Error()})
		return
	}

	importHub.publish(&ProgressEvent{
		UploadID:  uploadID,
		Processed: result.Total,
		Total:     result.Total,
		Done:      true,
		Result:    result,
	})
}

// ImportProgressSocket streams progress frames for one upload
func ImportProgressSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uploadID := conn.Params("uploadId")
		if importHub.subscribe(uploadID, conn) {
			conn.Close()
			return
		}
		defer importHub.unsubscribe(uploadID, conn)

		// Reads only detect disconnects; clients never send frames.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// RequireWebSocketUpgrade rejects plain HTTP requests on ws routes
func RequireWebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// GetImportJobs lists recent import jobs
func GetImportJobs(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := importService.ListJobs(limit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

// GetImportJob returns one job by its public id
func GetImportJob(c *fiber.Ctx) error {
	job, err := importService.GetJob(c.Params("jobId"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(job)
}

// ExportAwards writes the filtered awards to a download
func ExportAwards(c *fiber.Ctx) error {
	format := c.Query("format", "xlsx")
	if format != "csv" && format != "xlsx" {
		return c.Status(400).JSON(fiber.Map{"error": "format must be csv or xlsx"})
	}

	tempDir, err := os.MkdirTemp("", "certvault-export-*")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to stage export"})
	}
	defer os.RemoveAll(tempDir)

	filename := fmt.Sprintf("awards_%s.%s", time.Now().Format("20060102_150405"), format)
	path := filepath.Join(tempDir, filename)

	if _, err := exportService.Export(path, awardFilterFromQuery(c)); err != nil {
		return serviceError(c, err)
	}
	return c.Download(path, filename)
}

// DownloadTemplate writes an empty import template
func DownloadTemplate(c *fiber.Ctx) error {
	format := c.Query("format", "xlsx")
	if format != "csv" && format != "xlsx" {
		return c.Status(400).JSON(fiber.Map{"error": "format must be csv or xlsx"})
	}

	tempDir, err := os.MkdirTemp("", "certvault-template-*")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to stage template"})
	}
	defer os.RemoveAll(tempDir)

	filename := "import_template." + format
	path := filepath.Join(tempDir, filename)

	if err := exportService.WriteTemplate(path); err != nil {
		return serviceError(c, err)
	}
	return c.Download(path, filename)
}
