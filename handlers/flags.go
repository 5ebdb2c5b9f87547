// handlers/flags.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type FlagRequest struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	DefaultValue bool   `json:"default_value"`
	SortOrder    int    `json:"sort_order"`
}

// GetFlags lists flag definitions
func GetFlags(c *fiber.Ctx) error {
	flags, err := flagService.ListFlags()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"flags": flags})
}

// CreateFlag registers a flag definition
func CreateFlag(c *fiber.Ctx) error {
	var req FlagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	flag, err := flagService.CreateFlag(req.Key, req.Label, req.DefaultValue, req.SortOrder)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(flag)
}

// UpdateFlag edits label, default or ordering
func UpdateFlag(c *fiber.Ctx) error {
	var req FlagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	flag, err := flagService.UpdateFlag(c.Params("key"), req.Label, req.DefaultValue, req.SortOrder)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(flag)
}

// DeleteFlag removes a definition and its stored values
func DeleteFlag(c *fiber.Ctx) error {
	if err := flagService.DeleteFlag(c.Params("key")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Flag deleted"})
}

// SetAwardFlags replaces one award's flag values
func SetAwardFlags(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}

	var values map[string]bool
	if err := c.BodyParser(&values); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := flagService.SetAwardFlags(nil, uint(id), values); err != nil {
		return serviceError(c, err)
	}

	effective, err := flagService.GetAwardFlags(uint(id))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"flags": effective})
}
