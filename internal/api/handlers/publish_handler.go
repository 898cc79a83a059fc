package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/service"
)

type PublishHandler struct {
	publisher service.PublishService
	log       logging.Logger
}

func NewPublishHandler(publisher service.PublishService, log logging.Logger) *PublishHandler {
	return &PublishHandler{publisher: publisher, log: log}
}

// PublishDue runs one publish pass over every due post.
func (h *PublishHandler) PublishDue(c *fiber.Ctx) error {
	h.log.WithField("operator", GetOperator(c)).Info("publish run requested")

	report, err := h.publisher.PublishDue(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PublishHandler) PublishOne(c *fiber.Ctx) error {
	report, err := h.publisher.PublishOne(c.Context(), c.Params("uid"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}
