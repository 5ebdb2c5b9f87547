// handlers/awards.go
package handlers

import (
	"strconv"
	"time"

	"certvault/services"

	"github.com/gofiber/fiber/v2"
)

type MemberPayload struct {
	Name      string `json:"name"`
	Linked    bool   `json:"linked"`
	Gender    string `json:"gender"`
	IDCard    string `json:"id_card"`
	Phone     string `json:"phone"`
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
	Major     string `json:"major"`
	ClassName string `json:"class_name"`
	College   string `json:"college"`
}

func (p MemberPayload) descriptor() services.MemberDescriptor {
	meta := services.MemberMeta{
		Gender:    p.Gender,
		IDCard:    p.IDCard,
		Phone:     p.Phone,
		StudentID: p.StudentID,
		Email:     p.Email,
		Major:     p.Major,
		ClassName: p.ClassName,
		College:   p.College,
	}
	if p.Linked || meta != (services.MemberMeta{}) {
		return services.LinkedMember(p.Name, meta)
	}
	return services.NameOnly(p.Name)
}

type AwardRequest struct {
	CompetitionName *string          `json:"competition_name"`
	AwardDate       *string          `json:"award_date"`
	Level           *string          `json:"level"`
	Rank            *string          `json:"rank"`
	CertificateCode *string          `json:"certificate_code"`
	Remarks         *string          `json:"remarks"`
	Members         *[]MemberPayload `json:"members"`
	Attachments     *[]string        `json:"attachments"`
	Flags           map[string]bool  `json:"flags"`
}

func parseAwardDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func awardFilterFromQuery(c *fiber.Ctx) services.AwardFilter {
	year, _ := strconv.Atoi(c.Query("year"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	from, _ := parseAwardDate(c.Query("from"))
	to, _ := parseAwardDate(c.Query("to"))
	return services.AwardFilter{
		Level:      c.Query("level"),
		Rank:       c.Query("rank"),
		Year:       year,
		DateFrom:   from,
		DateTo:     to,
		MemberName: c.Query("member"),
		Limit:      limit,
		Offset:     offset,
	}
}

// GetAwards lists active awards, optionally full-text filtered with ?q=
func GetAwards(c *fiber.Ctx) error {
	filter := awardFilterFromQuery(c)

	query := c.Query("q")
	awards, err := awardService.Search(query, filter)
	if err != nil {
		return serviceError(c, err)
	}

	total, err := awardService.Count(filter)
	if err != nil {
		return serviceError(c, err)
	}

	ids := make([]uint, len(awards))
	for i, a := range awards {
		ids[i] = a.ID
	}
	flags, err := flagService.GetFlagsForAwards(ids)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"awards": awards,
		"flags":  flags,
		"total":  total,
	})
}

// GetAward returns one award with members, attachments and flags
func GetAward(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}

	award, err := awardService.Get(uint(id))
	if err != nil {
		return serviceError(c, err)
	}

	flags, err := flagService.GetAwardFlags(award.ID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"award": award,
		"flags": flags,
	})
}

// CreateAward creates an award from a JSON body
func CreateAward(c *fiber.Ctx) error {
	var req AwardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.CompetitionName == nil || req.AwardDate == nil {
		return c.Status(400).JSON(fiber.Map{"error": "competition_name and award_date are required"})
	}

	date, err := parseAwardDate(*req.AwardDate)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "award_date must be YYYY-MM-DD"})
	}

	input := services.CreateAwardInput{
		CompetitionName: *req.CompetitionName,
		AwardDate:       date,
		Flags:           req.Flags,
	}
	if req.Level != nil {
		input.Level = *req.Level
	}
	if req.Rank != nil {
		input.Rank = *req.Rank
	}
	if req.CertificateCode != nil {
		input.CertificateCode = *req.CertificateCode
	}
	if req.Remarks != nil {
		input.Remarks = *req.Remarks
	}
	if req.Members != nil {
		for _, m := range *req.Members {
			input.Members = append(input.Members, m.descriptor())
		}
	}
	if req.Attachments != nil {
		input.AttachmentSources = *req.Attachments
	}

	award, err := awardService.Create(input)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(201).JSON(award)
}

// UpdateAward applies a partial update
func UpdateAward(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}

	var req AwardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := services.UpdateAwardInput{
		CompetitionName: req.CompetitionName,
		Level:           req.Level,
		Rank:            req.Rank,
		CertificateCode: req.CertificateCode,
		Remarks:         req.Remarks,
		Flags:           req.Flags,
	}
	if req.AwardDate != nil {
		date, err := parseAwardDate(*req.AwardDate)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "award_date must be YYYY-MM-DD"})
		}
		input.AwardDate = &date
	}
	if req.Members != nil {
		input.MembersSet = true
		for _, m := range *req.Members {
			input.Members = append(input.Members, m.descriptor())
		}
	}
	if req.Attachments != nil {
		input.AttachmentsSet = true
		input.AttachmentSources = *req.Attachments
	}

	award, err := awardService.Update(uint(id), input)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(award)
}

// DeleteAward soft-deletes an award
func DeleteAward(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid award id"})
	}
	if err := awardService.Delete(uint(id)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Award moved to recycle bin"})
}

type batchAwardsRequest struct {
	IDs   []uint `json:"ids"`
	Level string `json:"level"`
	Rank  string `json:"rank"`
}

// BatchDeleteAwards soft-deletes a set of awards in one go
func BatchDeleteAwards(c *fiber.Ctx) error {
	var req batchAwardsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "ids are required"})
	}
	count, err := awardService.BatchDelete(req.IDs)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Awards moved to recycle bin", "count": count})
}

// BatchUpdateAwards rewrites the level and/or rank of a set of awards
func BatchUpdateAwards(c *fiber.Ctx) error {
	var req batchAwardsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "ids are required"})
	}
	if req.Level == "" && req.Rank == "" {
		return c.Status(400).JSON(fiber.Map{"error": "level or rank is required"})
	}

	var updated int64
	if req.Level != "" {
		count, err := awardService.BatchUpdateLevel(req.IDs, req.Level)
		if err != nil {
			return serviceError(c, err)
		}
		updated = count
	}
	if req.Rank != "" {
		count, err := awardService.BatchUpdateRank(req.IDs, req.Rank)
		if err != nil {
			return serviceError(c, err)
		}
		updated = count
	}
	return c.JSON(fiber.Map{"message": "Awards updated", "count": updated})
}

// GetStats returns dashboard aggregates
func GetStats(c *fiber.Ctx) error {
	overview, err := statsService.GetOverview()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(overview)
}
