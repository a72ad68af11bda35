package models

import (
	"time"

	"labchat_server/apperrors"
)

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRejected InvitationStatus = "rejected"
)

// Invitation binds a single-use token to a group.
type Invitation struct {
	InvitationID string           `dynamodbav:"invitationId" json:"id"`
	GroupID      string           `dynamodbav:"groupId" json:"groupId"`
	SenderID     string           `dynamodbav:"senderId" json:"senderId"`
	Email        string           `dynamodbav:"email" json:"email"`
	Token        string           `dynamodbav:"token" json:"token"`
	Status       InvitationStatus `dynamodbav:"status" json:"status"`
	CreatedAt    time.Time        `dynamodbav:"createdAt" json:"createdAt"`
	RespondedBy  string           `dynamodbav:"respondedBy,omitempty" json:"respondedBy,omitempty"`
	RespondedAt  *time.Time       `dynamodbav:"respondedAt,omitempty" json:"respondedAt,omitempty"`
}

// Transition moves a pending invitation to a terminal state. Terminal states never change again.
func (inv *Invitation) Transition(to InvitationStatus, by string, at time.Time) error {
	if to != InvitationStatusAccepted && to != InvitationStatusRejected {
		return apperrors.InvalidInput("invalid invitation status")
	}
	if inv.Status != InvitationStatusPending {
		return apperrors.NotFound("invalid or expired invitation")
	}
	inv.Status = to
	inv.RespondedBy = by
	inv.RespondedAt = &at
	return nil
}
