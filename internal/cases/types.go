// Package cases implements investigation cases, evidence and assignment
// management with role- and tenant-scoped authorization.
package cases

import (
	"fmt"
	"strings"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

// Status is the lifecycle state of a case.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusClosed     Status = "CLOSED"
	StatusArchived   Status = "ARCHIVED"
)

// ParseStatus normalizes and validates a case status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusOpen, StatusInProgress, StatusClosed, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown case status %q", auth.ErrInvalidInput, s)
}

// Priority is the urgency of a case.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ParsePriority normalizes and validates a case priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown case priority %q", auth.ErrInvalidInput, s)
}

// EvidenceType classifies an evidence item.
type EvidenceType string

const (
	EvidenceFile       EvidenceType = "FILE"
	EvidenceURL        EvidenceType = "URL"
	EvidenceIP         EvidenceType = "IP"
	EvidenceDomain     EvidenceType = "DOMAIN"
	EvidenceEmail      EvidenceType = "EMAIL"
	EvidencePhone      EvidenceType = "PHONE"
	EvidenceSocial     EvidenceType = "SOCIAL"
	EvidenceNote       EvidenceType = "NOTE"
	EvidenceScreenshot EvidenceType = "SCREENSHOT"
	EvidenceDocument   EvidenceType = "DOCUMENT"
	EvidenceImage      EvidenceType = "IMAGE"
	EvidenceVideo      EvidenceType = "VIDEO"
	EvidenceAudio      EvidenceType = "AUDIO"
	EvidenceText       EvidenceType = "TEXT"
	EvidenceOther      EvidenceType = "OTHER"
)

// ParseEvidenceType normalizes and validates an evidence type.
func ParseEvidenceType(s string) (EvidenceType, error) {
	t := EvidenceType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case EvidenceFile, EvidenceURL, EvidenceIP, EvidenceDomain, EvidenceEmail,
		EvidencePhone, EvidenceSocial, EvidenceNote, EvidenceScreenshot,
		EvidenceDocument, EvidenceImage, EvidenceVideo, EvidenceAudio,
		EvidenceText, EvidenceOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown evidence type %q", auth.ErrInvalidInput, s)
}

// Case is an investigation case. OrganizationID is empty for cases owned
// by organization-less identities; AssignedTo is the legacy single
// assignee kept alongside the assignment table.
type Case struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	CreatedBy      string     `json:"created_by"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	OrganizationID string     `json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// Assignment links an identity to a case.
type Assignment struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	UserID     string    `json:"user_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Evidence is a single evidence item attached to a case. For uploaded
// files FilePath/FileSize/FileHash describe the stored object and
// Content is empty; for the other types Content carries the payload.
// OrganizationID is copied from the parent case at creation time.
type Evidence struct {
	ID             string         `json:"id"`
	CaseID         string         `json:"case_id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Type           EvidenceType   `json:"evidence_type"`
	Content        string         `json:"content,omitempty"`
	FilePath       string         `json:"file_path,omitempty"`
	FileSize       int64          `json:"file_size,omitempty"`
	FileHash       string         `json:"file_hash,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Tags           string         `json:"tags,omitempty"`
	Verified       bool           `json:"is_verified"`
	UploadedBy     string         `json:"uploaded_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
