// handlers/members.go
package handlers

import (
	"strconv"

	"certvault/models"

	"github.com/gofiber/fiber/v2"
)

// GetMembers lists member profiles, optionally searched with ?q=
func GetMembers(c *fiber.Ctx) error {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.Query("limit"))

	members, err := memberService.Search(query, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"members": members, "total": len(members)})
}

// GetMember returns one profile
func GetMember(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid member id"})
	}

	member, err := memberService.Get(uint(id))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(member)
}

// CreateMember creates a standalone profile
func CreateMember(c *fiber.Ctx) error {
	var member models.TeamMember
	if err := c.BodyParser(&member); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	member.ID = 0

	if err := memberService.Create(&member); err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(member)
}

// UpdateMember applies a partial update from a JSON object
func UpdateMember(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid member id"})
	}

	var body map[string]interface{}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	delete(body, "id")
	delete(body, "created_at")
	delete(body, "updated_at")

	member, err := memberService.Update(uint(id), body)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(member)
}

// DeleteMember removes a profile; award history keeps its snapshots
func DeleteMember(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid member id"})
	}
	if err := memberService.Delete(uint(id)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Member deleted"})
}
