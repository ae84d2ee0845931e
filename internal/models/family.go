package models

import "time"

// ============================================
// Family Requests
// ============================================

type FamilyNameRequest struct {
	Name string `json:"name"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type CreateInvitationRequest struct {
	Email string `json:"email"`
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// ============================================
// Family Responses
// ============================================

type FamilyResponse struct {
	UUID      string           `json:"uuid"`
	Name      string           `json:"name"`
	OwnerUUID string           `json:"ownerUuid"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Members   []MemberResponse `json:"members"`
}

// UserFamilyResponse is the caller's family plus the caller's own role.
type UserFamilyResponse struct {
	FamilyResponse
	Role string `json:"role"`
}

type MemberResponse struct {
	UUID       string     `json:"uuid"`
	FamilyUUID string     `json:"familyUuid"`
	UserUUID   string     `json:"userUuid"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	Username   string     `json:"username,omitempty"`
	Email      string     `json:"email,omitempty"`
	InvitedBy  *string    `json:"invitedBy,omitempty"`
	InvitedAt  *time.Time `json:"invitedAt,omitempty"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type InvitationResponse struct {
	UUID        string    `json:"uuid"`
	FamilyUUID  string    `json:"familyUuid"`
	FamilyName  string    `json:"familyName,omitempty"`
	Email       string    `json:"email"`
	Token       string    `json:"token,omitempty"`
	Status      string    `json:"status"`
	InvitedBy   string    `json:"invitedBy"`
	InviterName string    `json:"inviterName,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InvitationPreviewResponse is what the invite landing page may show before
// the invitee accepts. It carries no token.
type InvitationPreviewResponse struct {
	FamilyName  string    `json:"familyName"`
	InviterName string    `json:"inviterName,omitempty"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
