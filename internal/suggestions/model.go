package suggestions

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 64

var (
	// ErrInvalidTenantID indicates that a tenant identifier is empty or exceeds storage bounds.
	ErrInvalidTenantID = errors.New("suggestions: invalid tenant id")
	// ErrInvalidAuthorID indicates that an author identifier is empty or exceeds storage bounds.
	ErrInvalidAuthorID = errors.New("suggestions: invalid author id")
	// ErrInvalidSuggestionID indicates that a suggestion identifier is not positive.
	ErrInvalidSuggestionID = errors.New("suggestions: invalid suggestion id")
	// ErrInvalidResolveAction indicates an unknown resolution action.
	ErrInvalidResolveAction = errors.New("suggestions: invalid resolve action")
)

// TenantID represents a validated tenant (community) identifier.
type TenantID string

// NewTenantID validates raw input and returns a TenantID.
func NewTenantID(rawInput string) (TenantID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTenantID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTenantID, maxIdentifierLength)
	}
	return TenantID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TenantID) String() string {
	return string(id)
}

// AuthorID represents a validated author (member) identifier.
type AuthorID string

// NewAuthorID validates raw input and returns an AuthorID.
func NewAuthorID(rawInput string) (AuthorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAuthorID, maxIdentifierLength)
	}
	return AuthorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id AuthorID) String() string {
	return string(id)
}

// SuggestionID represents a validated per-tenant sequence number.
type SuggestionID int64

// NewSuggestionID validates the value and returns a SuggestionID.
func NewSuggestionID(value int64) (SuggestionID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSuggestionID, value)
	}
	return SuggestionID(value), nil
}

// Int64 exposes the raw sequence value.
func (id SuggestionID) Int64() int64 {
	return int64(id)
}

// ResolveAction enumerates moderator resolutions.
type ResolveAction string

const (
	// ResolveActionAccept marks a suggestion as accepted.
	ResolveActionAccept ResolveAction = "accept"
	// ResolveActionConsider marks a suggestion as under consideration.
	ResolveActionConsider ResolveAction = "consider"
	// ResolveActionDeny marks a suggestion as denied.
	ResolveActionDeny ResolveAction = "deny"
)

// ParseResolveAction validates raw input and returns a ResolveAction.
func ParseResolveAction(rawInput string) (ResolveAction, error) {
	switch ResolveAction(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ResolveActionAccept:
		return ResolveActionAccept, nil
	case ResolveActionConsider:
		return ResolveActionConsider, nil
	case ResolveActionDeny:
		return ResolveActionDeny, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResolveAction, rawInput)
	}
}

// String returns the action name.
func (a ResolveAction) String() string {
	return string(a)
}

// ArtifactRef addresses the externally rendered message for a suggestion.
type ArtifactRef struct {
	ChannelID string
	MessageID string
}

// RenderedContent is the opaque message payload produced by a Renderer and
// consumed by a MessageStore. The engine never inspects it.
type RenderedContent []byte

// Suggestion models the persisted suggestion record. The sequence number is
// unique and gapless within a tenant; replied and archived timestamps are
// write-once.
type Suggestion struct {
	TenantID          string `gorm:"column:tenant_id;primaryKey;size:64;not null"`
	ID                int64  `gorm:"column:id;primaryKey;not null"`
	AuthorID          string `gorm:"column:author_id;size:64;not null"`
	ChannelID         string `gorm:"column:channel_id;size:64;not null"`
	MessageID         string `gorm:"column:message_id;size:64;not null"`
	Content           string `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
	RepliedAtSeconds  *int64 `gorm:"column:replied_at_s"`
	RepliedAction     string `gorm:"column:replied_action;size:16;not null;default:''"`
	RepliedResponse   string `gorm:"column:replied_response;type:text;not null;default:''"`
	ArchivedAtSeconds *int64 `gorm:"column:archived_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Suggestion) TableName() string {
	return "suggestions"
}

// Ref returns the artifact reference for the suggestion's rendered message.
func (s Suggestion) Ref() ArtifactRef {
	return ArtifactRef{ChannelID: s.ChannelID, MessageID: s.MessageID}
}

// TenantSettings captures per-tenant rendering configuration. The engine only
// checks that a channel is configured; all flags are interpreted by the
// rendering layer.
type TenantSettings struct {
	TenantID     string `gorm:"column:tenant_id;primaryKey;size:64;not null"`
	ChannelID    string `gorm:"column:channel_id;size:64;not null;default:''"`
	UseEmbed     bool   `gorm:"column:use_embed;not null;default:true"`
	Compact      bool   `gorm:"column:compact;not null;default:false"`
	Buttons      bool   `gorm:"column:buttons;not null;default:true"`
	AutoThread   bool   `gorm:"column:auto_thread;not null;default:false"`
	ReactionsCSV string `gorm:"column:reactions;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (TenantSettings) TableName() string {
	return "tenant_settings"
}

// Configured reports whether the tenant has a target channel.
func (s TenantSettings) Configured() bool {
	return strings.TrimSpace(s.ChannelID) != ""
}

// Reactions returns the configured reaction emoji, if any.
func (s TenantSettings) Reactions() []string {
	if strings.TrimSpace(s.ReactionsCSV) == "" {
		return nil
	}
	parts := strings.Split(s.ReactionsCSV, ",")
	reactions := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			reactions = append(reactions, trimmed)
		}
	}
	return reactions
}

// EventOperation enumerates audit trail operations.
type EventOperation string

const (
	// EventOperationCreated records a new suggestion.
	EventOperationCreated EventOperation = "created"
	// EventOperationEdited records an author edit.
	EventOperationEdited EventOperation = "edited"
	// EventOperationResolved records a moderator resolution.
	EventOperationResolved EventOperation = "resolved"
	// EventOperationArchived records archival, explicit or reconciled.
	EventOperationArchived EventOperation = "archived"
)

// SuggestionEvent captures an append-only audit trail for suggestion
// lifecycle transitions.
type SuggestionEvent struct {
	EventID           string         `gorm:"column:event_id;primaryKey;size:190;not null"`
	TenantID          string         `gorm:"column:tenant_id;size:64;not null;index:idx_events_tenant_time,priority:1"`
	SuggestionID      int64          `gorm:"column:suggestion_id;not null"`
	ActorID           string         `gorm:"column:actor_id;size:64;not null"`
	Operation         EventOperation `gorm:"column:op;size:16;not null"`
	Detail            string         `gorm:"column:detail;type:text;not null;default:''"`
	OccurredAtSeconds int64          `gorm:"column:occurred_at_s;not null;index:idx_events_tenant_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (SuggestionEvent) TableName() string {
	return "suggestion_events"
}
