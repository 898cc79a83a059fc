package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/service"
)

type PostHandler struct {
	lifecycle service.LifecycleService
	history   repository.PostingHistoryRepository
	log       logging.Logger
}

func NewPostHandler(lifecycle service.LifecycleService, history repository.PostingHistoryRepository, log logging.Logger) *PostHandler {
	return &PostHandler{lifecycle: lifecycle, history: history, log: log}
}

type editRequest struct {
	Caption string `json:"caption"`
}

type batchApproveRequest struct {
	UIDs []string `json:"uids"`
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req service.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "unable to parse body")
	}

	post, err := h.lifecycle.Create(c.Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}

	h.log.WithFields(logging.Fields{"uid": post.UID, "operator": GetOperator(c)}).Info("post created")
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	filter := models.PostFilter{Status: models.PostStatus(c.Query("status"))}
	if filter.Status != "" && !validStatus(filter.Status) {
		return badRequest(c, "unknown status "+string(filter.Status))
	}

	posts, err := h.lifecycle.List(c.Context(), filter)
	if err != nil {
		return errorJSON(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.lifecycle.Get(c.Context(), c.Params("uid"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) EditPost(c *fiber.Ctx) error {
	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "unable to parse body")
	}

	post, err := h.lifecycle.Edit(c.Context(), c.Params("uid"), req.Caption)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ApprovePost(c *fiber.Ctx) error {
	approval, err := h.lifecycle.Approve(c.Context(), c.Params("uid"))
	if err != nil {
		return errorJSON(c, err)
	}

	h.log.WithFields(logging.Fields{"uid": approval.UID, "operator": GetOperator(c)}).Info("post approved")
	return c.Status(fiber.StatusOK).JSON(approval)
}

func (h *PostHandler) ApproveBatch(c *fiber.Ctx) error {
	var req batchApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "unable to parse body")
	}

	approvals, err := h.lifecycle.ApproveBatch(c.Context(), req.UIDs)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(approvals)
}

func (h *PostHandler) RejectPost(c *fiber.Ctx) error {
	post, err := h.lifecycle.Reject(c.Context(), c.Params("uid"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.lifecycle.Remove(c.Context(), c.Params("uid")); err != nil {
		return errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) PostHistory(c *fiber.Ctx) error {
	uid := c.Params("uid")
	if _, err := h.lifecycle.Get(c.Context(), uid); err != nil {
		return errorJSON(c, err)
	}

	history, err := h.history.ListByPostUID(c.Context(), uid)
	if err != nil {
		return errorJSON(c, err)
	}
	if history == nil {
		history = []*models.PostingHistory{}
	}
	return c.Status(fiber.StatusOK).JSON(history)
}

func validStatus(s models.PostStatus) bool {
	switch s {
	case models.PostStatusPending, models.PostStatusApproved, models.PostStatusRejected,
		models.PostStatusPosted, models.PostStatusFailed:
		return true
	}
	return false
}
