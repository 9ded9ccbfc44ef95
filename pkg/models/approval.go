package models

import "time"

// ApprovalStatus is the resolution state of a pending approval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"

	// ApprovalStatusCancelled closes an approval whose run was cancelled before it resolved.
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// ApprovalAction is the decision an approver submits.
type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

// ApprovalRecord is one vote on an approval step. Records are append-only and never modified.
type ApprovalRecord struct {
	ApproverID   string         `json:"approver_id"`
	ApproverName string         `json:"approver_name"`
	ApproverRole string         `json:"approver_role"`
	Status       ApprovalStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	Comments     string         `json:"comments,omitempty"`
}

// PendingApproval tracks the votes of one approval step within one run.
type PendingApproval struct {
	ID                string           `json:"id"`
	RunID             string           `json:"run_id"`
	WorkflowID        string           `json:"workflow_id"`
	StepID            string           `json:"step_id"`
	RequiredApprovals int              `json:"required_approvals"`
	ApproverRoles     []string         `json:"approver_roles"`
	Approvals         []ApprovalRecord `json:"approvals"`
	Status            ApprovalStatus   `json:"status"`
	Initiated         time.Time        `json:"initiated"`
	Resolved          *time.Time       `json:"resolved,omitempty"`

	// Version is incremented on every successful update and backs optimistic locking.
	Version int64 `json:"version"`
}

// IsResolved reports whether the approval has reached a terminal status.
func (p *PendingApproval) IsResolved() bool {
	return p.Status == ApprovalStatusApproved ||
		p.Status == ApprovalStatusRejected ||
		p.Status == ApprovalStatusCancelled
}

// ApprovedCount counts the approved records.
func (p *PendingApproval) ApprovedCount() int {
	count := 0

	for _, record := range p.Approvals {
		if record.Status == ApprovalStatusApproved {
			count++
		}
	}

	return count
}

// HasVoted reports whether the approver already submitted a decision.
func (p *PendingApproval) HasVoted(approverID string) bool {
	for _, record := range p.Approvals {
		if record.ApproverID == approverID {
			return true
		}
	}

	return false
}
