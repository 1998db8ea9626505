package suggestions

import (
	"context"
	"time"
)

// Repository owns the persisted suggestion records and the per-tenant
// durable sequence counters. Implementations must make MarkReplied and
// MarkArchived conditional updates so that write-once fields survive races
// between concurrent operations.
type Repository interface {
	Settings(ctx context.Context, tenant TenantID) (TenantSettings, bool, error)
	SequenceCount(ctx context.Context, tenant TenantID) (int64, error)
	// Insert persists a freshly created suggestion and advances the tenant's
	// sequence counter as one atomic unit, so the counter never trails the
	// table.
	Insert(ctx context.Context, suggestion *Suggestion) error
	Find(ctx context.Context, tenant TenantID, id SuggestionID) (*Suggestion, bool, error)
	// UpdateContent replaces the submission text iff the record is still
	// open. It reports whether a row was updated; a replied or archived
	// record is left untouched.
	UpdateContent(ctx context.Context, tenant TenantID, id SuggestionID, content string) (bool, error)
	// MarkReplied sets replied_at iff it is still null and the record is not
	// archived. It reports whether this call performed the transition.
	MarkReplied(ctx context.Context, tenant TenantID, id SuggestionID, repliedAt time.Time, action ResolveAction, response string) (bool, error)
	// MarkArchived sets archived_at iff it is still null. It reports whether
	// this call performed the transition.
	MarkArchived(ctx context.Context, tenant TenantID, id SuggestionID, archivedAt time.Time) (bool, error)
	RecordEvent(ctx context.Context, event *SuggestionEvent) error
}

// MessageStore realizes the externally visible message for a suggestion.
// Implementations return ErrArtifactNotFound when the addressed message no
// longer exists and wrap other failures in ErrTransport.
type MessageStore interface {
	Create(ctx context.Context, channelID string, content RenderedContent) (ArtifactRef, error)
	Update(ctx context.Context, ref ArtifactRef, content RenderedContent) error
	Fetch(ctx context.Context, ref ArtifactRef) (RenderedContent, error)
	React(ctx context.Context, ref ArtifactRef, emoji string) error
	StartThread(ctx context.Context, ref ArtifactRef, name string) error
}

// MessageData carries the suggestion fields a renderer may display.
type MessageData struct {
	ID        SuggestionID
	TenantID  TenantID
	AuthorID  AuthorID
	Content   string
	CreatedAt time.Time
}

// ResolutionData carries the fields appended to a message on resolution.
type ResolutionData struct {
	ID       SuggestionID
	Action   ResolveAction
	Response string
}

// Renderer builds the opaque message payloads. The engine passes settings
// through without interpreting the rendering flags.
type Renderer interface {
	RenderNew(settings TenantSettings, data MessageData) (RenderedContent, error)
	RenderEdit(settings TenantSettings, existing RenderedContent, data MessageData) (RenderedContent, error)
	RenderResolution(settings TenantSettings, existing RenderedContent, data ResolutionData) (RenderedContent, error)
	RenderArchived(existing RenderedContent) (RenderedContent, error)
}

// IDProvider issues identifiers for audit events.
type IDProvider interface {
	NewID() (string, error)
}
