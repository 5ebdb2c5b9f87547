// handlers/trash.go - Recycle Bin
package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// GetDeletedAwards lists soft-deleted awards
func GetDeletedAwards(c *fiber.Ctx) error {
	awards, err := awardService.ListDeleted()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"awards": awards, "total": len(awards)})
}

// RestoreAward brings a soft-deleted award back
func RestoreAward(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}
	if err := awardService.Restore(uint(id)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Award restored"})
}

// PurgeAward permanently deletes an award and its files
func PurgeAward(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}
	if err := awardService.PermanentlyDelete(uint(id)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Award permanently deleted"})
}

// GetDeletedAttachments lists trashed attachments
func GetDeletedAttachments(c *fiber.Ctx) error {
	attachments, err := attachmentService.ListDeleted()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"attachments": attachments, "total": len(attachments)})
}

type attachmentIDsRequest struct {
	IDs []uint `json:"ids"`
}

// DeleteAttachments moves attachment files to the trash
func DeleteAttachments(c *fiber.Ctx) error {
	var req attachmentIDsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "ids are required"})
	}
	if err := attachmentService.MarkDeleted(req.IDs); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Attachments moved to trash"})
}

// RestoreAttachments moves trashed files back to their awards
func RestoreAttachments(c *fiber.Ctx) error {
	var req attachmentIDsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "ids are required"})
	}
	if err := attachmentService.Restore(req.IDs); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Attachments restored"})
}

// PurgeAttachments permanently removes trashed attachments; an empty
// body empties the whole trash
func PurgeAttachments(c *fiber.Ctx) error {
	var req attachmentIDsRequest
	_ = c.BodyParser(&req)

	removed, err := attachmentService.Purge(req.IDs)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Trash purged", "removed": removed})
}
