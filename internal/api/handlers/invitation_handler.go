package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Maxborland/EvaCalendar-sub000/internal/api/middleware"
	"github.com/Maxborland/EvaCalendar-sub000/internal/email"
	"github.com/Maxborland/EvaCalendar-sub000/internal/models"
	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
)

// InvitationMailer is satisfied by *email.Queue.
type InvitationMailer interface {
	Enqueue(to string, data email.FamilyInvitationData) error
}

// InvitationHandler exposes HTTP endpoints for invitation flows.
type InvitationHandler struct {
	svc         service.InvitationService
	gate        service.AuthorizationGate
	mailer      InvitationMailer
	frontendURL string
}

func NewInvitationHandler(svc service.InvitationService, gate service.AuthorizationGate, mailer InvitationMailer, frontendURL string) *InvitationHandler {
	return &InvitationHandler{
		svc:         svc,
		gate:        gate,
		mailer:      mailer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (h *InvitationHandler) inviteURL(token string) string {
	return h.frontendURL + "/family/invite/" + url.PathEscape(token)
}

// RequireAdmin aborts unless the caller is an admin or the owner of the
// family named by :uuid.
func (h *InvitationHandler) RequireAdmin(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	if _, err := h.gate.AssertAdmin(c.Request.Context(), c.Param("uuid"), userID); err != nil {
		handleServiceError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

// POST /families/:uuid/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.svc.CreateInvitation(c.Request.Context(), c.Param("uuid"), req.Email, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	h.sendInvitationEmail(c.Request.Context(), view)

	resp := toInvitationResponse(view.Invitation)
	resp.FamilyName = view.FamilyName
	resp.InviterName = view.InviterName
	c.JSON(http.StatusCreated, resp)
}

// sendInvitationEmail queues the invitation email. A send that cannot be
// queued is logged; the invitation stays valid and can be re-shared.
func (h *InvitationHandler) sendInvitationEmail(ctx context.Context, view *service.InvitationView) {
	if h.mailer == nil {
		return
	}

	inv := view.Invitation
	err := h.mailer.Enqueue(inv.Email, email.FamilyInvitationData{
		FamilyName:  view.FamilyName,
		InviterName: view.InviterName,
		InviteURL:   h.inviteURL(inv.Token),
		ExpiresAt:   inv.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "invitation email not queued", "invitation_uuid", inv.UUID, "family_uuid", inv.FamilyUUID, "error", err)
	}
}

// GET /families/:uuid/invitations
func (h *InvitationHandler) ListPending(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	invitations, err := h.svc.ListPendingInvitations(c.Request.Context(), c.Param("uuid"), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response := make([]models.InvitationResponse, len(invitations))
	for i, inv := range invitations {
		response[i] = toInvitationResponse(inv)
	}
	c.JSON(http.StatusOK, response)
}

// GET /families/invitations/:token/preview
func (h *InvitationHandler) Preview(c *gin.Context) {
	if _, ok := middleware.RequireUserID(c); !ok {
		return
	}

	view, err := h.svc.GetInvitationPreview(c.Request.Context(), c.Param("token"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InvitationPreviewResponse{
		FamilyName:  view.FamilyName,
		InviterName: view.InviterName,
		Email:       view.Invitation.Email,
		ExpiresAt:   view.Invitation.ExpiresAt,
	})
}

// DELETE /families/invitations/:uuid
func (h *InvitationHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.CancelInvitation(c.Request.Context(), c.Param("uuid"), userID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// POST /families/accept-invitation
func (h *InvitationHandler) Accept(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req models.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	family, err := h.svc.AcceptInvitation(c.Request.Context(), req.Token, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toFamilyResponse(family))
}
