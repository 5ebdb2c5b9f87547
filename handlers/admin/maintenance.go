package admin

import (
	"log"

	"certvault/services"

	"github.com/gofiber/fiber/v2"
)

var (
	searchService   *services.SearchIndexService
	settingsService *services.SettingsService
)

// Init wires the admin handlers to their services.
func Init(search *services.SearchIndexService, settings *services.SettingsService) {
	searchService = search
	settingsService = settings
}

// RebuildSearchIndex drops and repopulates both full-text mirrors
func RebuildSearchIndex(c *fiber.Ctx) error {
	awards, members, err := searchService.RebuildAll()
	if err != nil {
		log.Printf("❌ Search index rebuild failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Index rebuild failed"})
	}

	log.Printf("✅ Search index rebuilt: %d awards, %d members", awards, members)
	return c.JSON(fiber.Map{
		"message": "Search index rebuilt",
		"awards":  awards,
		"members": members,
	})
}

// GetSettings returns all runtime settings
func GetSettings(c *fiber.Ctx) error {
	settings, err := settingsService.All()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.JSON(fiber.Map{"settings": settings})
}

// UpdateSettings upserts the given keys
func UpdateSettings(c *fiber.Ctx) error {
	var body map[string]string
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	for key, value := range body {
		if err := settingsService.Set(key, value); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Internal server error"})
		}
	}
	return c.JSON(fiber.Map{"message": "Settings updated"})
}
