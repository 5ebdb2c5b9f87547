// handlers/handlers.go - Shared Handler State
package handlers

import (
	"errors"

	"certvault/services"

	"github.com/gofiber/fiber/v2"
)

var (
	awardService      *services.AwardService
	memberService     *services.MemberService
	flagService       *services.FlagService
	attachmentService *services.AttachmentService
	importService     *services.ImportService
	exportService     *services.ExportService
	statsService      *services.StatsService
	searchService     *services.SearchIndexService
	settingsService   *services.SettingsService
)

// Init wires the handler package to its services. Called once at
// startup before routes are registered.
func Init(
	awards *services.AwardService,
	members *services.MemberService,
	flags *services.FlagService,
	attachments *services.AttachmentService,
	imports *services.ImportService,
	exports *services.ExportService,
	stats *services.StatsService,
	search *services.SearchIndexService,
	settings *services.SettingsService,
) {
	awardService = awards
	memberService = members
	flagService = flags
	attachmentService = attachments
	importService = imports
	exportService = exports
	statsService = stats
	searchService = search
	settingsService = settings
}

// serviceError maps service sentinel errors to HTTP responses.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, services.ErrValidation):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}
}
