package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maxborland/EvaCalendar-sub000/internal/api/middleware"
	"github.com/Maxborland/EvaCalendar-sub000/internal/models"
	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// FamilyHandler handles family and membership requests
type FamilyHandler struct {
	familySvc service.FamilyService
}

func NewFamilyHandler(familySvc service.FamilyService) *FamilyHandler {
	return &FamilyHandler{familySvc: familySvc}
}

// GetMine returns the caller's family with their role, or null.
// GET /families/my
func (h *FamilyHandler) GetMine(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	family, err := h.familySvc.GetUserFamily(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if family == nil {
		c.JSON(http.StatusOK, nil)
		return
	}

	c.JSON(http.StatusOK, models.UserFamilyResponse{
		FamilyResponse: toFamilyResponse(&family.FamilyView),
		Role:           string(family.Role),
	})
}

// POST /families
func (h *FamilyHandler) Create(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.FamilyNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	family, err := h.familySvc.CreateFamily(c.Request.Context(), req.Name, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toFamilyResponse(family))
}

// PUT /families/:uuid
func (h *FamilyHandler) Rename(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.FamilyNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	family, err := h.familySvc.UpdateFamilyName(c.Request.Context(), c.Param("uuid"), req.Name, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toFamilyResponse(family))
}

// DELETE /families/:uuid
func (h *FamilyHandler) Delete(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.familySvc.DeleteFamily(c.Request.Context(), c.Param("uuid"), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GET /families/:uuid/members
func (h *FamilyHandler) ListMembers(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	members, err := h.familySvc.GetMembers(c.Request.Context(), c.Param("uuid"), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMemberResponseList(members))
}

// PUT /families/:uuid/members/:userUuid
func (h *FamilyHandler) UpdateMemberRole(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}
	role, err := types.ParseRole(req.Role)
	if err != nil {
		badRequest(c, "role must be admin or member")
		return
	}

	member, err := h.familySvc.UpdateMemberRole(c.Request.Context(), c.Param("uuid"), c.Param("userUuid"), role, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMemberResponse(member))
}

// DELETE /families/:uuid/members/:userUuid
func (h *FamilyHandler) RemoveMember(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.familySvc.RemoveMember(c.Request.Context(), c.Param("uuid"), c.Param("userUuid"), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// POST /families/leave
func (h *FamilyHandler) Leave(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.familySvc.LeaveFamily(c.Request.Context(), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
