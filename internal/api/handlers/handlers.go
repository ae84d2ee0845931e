package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maxborland/EvaCalendar-sub000/internal/models"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	Family     *FamilyHandler
	Invitation *InvitationHandler
}

// NewHandlers creates all handlers. mailer may be nil, in which case
// invitations are created without sending email.
func NewHandlers(services *service.Services, mailer InvitationMailer, frontendURL string) *Handlers {
	return &Handlers{
		Family:     NewFamilyHandler(services.Family),
		Invitation: NewInvitationHandler(services.Invitation, services.Gate, mailer, frontendURL),
	}
}

// handleServiceError maps domain error kinds to status codes. Anything else
// is logged and reported as a 500 without detail.
func handleServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.JSON(status, models.MessageResponse{Message: "internal server error"})
		return
	}
	c.JSON(status, models.MessageResponse{Message: service.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.MessageResponse{Message: msg})
}

// ============================================
// Response Mappers
// ============================================

func toFamilyResponse(v *service.FamilyView) models.FamilyResponse {
	resp := models.FamilyResponse{
		UUID:      v.Family.UUID,
		Name:      v.Family.Name,
		OwnerUUID: v.Family.OwnerUUID,
		CreatedAt: v.Family.CreatedAt,
		UpdatedAt: v.Family.UpdatedAt,
	}
	resp.Members = toMemberResponseList(v.Members)
	return resp
}

func toMemberResponse(m *repository.MemberWithUser) models.MemberResponse {
	return models.MemberResponse{
		UUID:       m.UUID,
		FamilyUUID: m.FamilyUUID,
		UserUUID:   m.UserUUID,
		Role:       string(m.Role),
		Status:     m.Status,
		Username:   m.Username,
		Email:      m.Email,
		InvitedBy:  m.InvitedBy,
		InvitedAt:  m.InvitedAt,
		AcceptedAt: m.AcceptedAt,
		CreatedAt:  m.CreatedAt,
	}
}

func toMemberResponseList(members []*repository.MemberWithUser) []models.MemberResponse {
	response := make([]models.MemberResponse, len(members))
	for i, m := range members {
		response[i] = toMemberResponse(m)
	}
	return response
}

func toInvitationResponse(inv *repository.Invitation) models.InvitationResponse {
	return models.InvitationResponse{
		UUID:       inv.UUID,
		FamilyUUID: inv.FamilyUUID,
		Email:      inv.Email,
		Token:      inv.Token,
		Status:     string(inv.Status),
		InvitedBy:  inv.InvitedBy,
		ExpiresAt:  inv.ExpiresAt,
		CreatedAt:  inv.CreatedAt,
	}
}
