package suggestions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingRepository   = errors.New("repository is required")
	errMissingMessageStore = errors.New("message store is required")
	errMissingRenderer     = errors.New("renderer is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errMissingContent      = errors.New("suggestion content is required")
	errConcurrentUpdate    = errors.New("record changed during the operation")
	noOpLogger             = zap.NewNop()
)

const (
	opServiceNew = "suggestions.service.new"
	opCreate     = "suggestions.create"
	opEdit       = "suggestions.edit"
	opResolve    = "suggestions.resolve"
	opArchive    = "suggestions.archive"
	opAudit      = "suggestions.audit"
)

// ServiceConfig describes the dependencies of the suggestion engine.
type ServiceConfig struct {
	Repository Repository
	Messages   MessageStore
	Renderer   Renderer
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service orchestrates the suggestion lifecycle: per-tenant serialized
// creation with gapless sequence numbers, author edits, write-once moderator
// resolutions, and idempotent archival with self-healing when the rendered
// message disappears.
type Service struct {
	repo       Repository
	messages   MessageStore
	renderer   Renderer
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	serializer *tenantSerializer
	allocator  sequenceAllocator
}

// NewService constructs the engine, owning one serializer instance for its
// lifetime.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	if cfg.Messages == nil {
		return nil, newServiceError(opServiceNew, "missing_message_store", errMissingMessageStore)
	}
	if cfg.Renderer == nil {
		return nil, newServiceError(opServiceNew, "missing_renderer", errMissingRenderer)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		repo:       cfg.Repository,
		messages:   cfg.Messages,
		renderer:   cfg.Renderer,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		serializer: newTenantSerializer(),
		allocator:  sequenceAllocator{repo: cfg.Repository},
	}, nil
}

// CreateRequest describes a new suggestion submission.
type CreateRequest struct {
	TenantID TenantID
	AuthorID AuthorID
	Content  string
}

// CreateResult carries the created record plus warnings from the best-effort
// post-creation steps (reactions, auto-thread) that never fail the creation.
type CreateResult struct {
	Suggestion Suggestion
	Warnings   []string
}

// Create posts a new suggestion. Creation for the same tenant is serialized
// in FIFO arrival order; the sequence counter only advances durably once the
// record is persisted, so a failed external post never consumes a number.
func (s *Service) Create(ctx context.Context, request CreateRequest) (CreateResult, error) {
	content := strings.TrimSpace(request.Content)
	if content == "" {
		return CreateResult{}, newServiceError(opCreate, "missing_content", errMissingContent)
	}

	settings, found, err := s.repo.Settings(ctx, request.TenantID)
	if err != nil {
		s.logError(opCreate, "settings_lookup_failed", err, zap.String("tenant_id", request.TenantID.String()))
		return CreateResult{}, newServiceError(opCreate, "settings_lookup_failed", err)
	}
	if !found || !settings.Configured() {
		return CreateResult{}, ErrNotConfigured
	}

	var created Suggestion
	err = s.serializer.Do(ctx, request.TenantID, func() error {
		id, err := s.allocator.Next(ctx, request.TenantID)
		if err != nil {
			s.logError(opCreate, "sequence_read_failed", err, zap.String("tenant_id", request.TenantID.String()))
			return newServiceError(opCreate, "sequence_read_failed", err)
		}

		createdAt := s.clock().UTC()
		rendered, err := s.renderer.RenderNew(settings, MessageData{
			ID:        id,
			TenantID:  request.TenantID,
			AuthorID:  request.AuthorID,
			Content:   content,
			CreatedAt: createdAt,
		})
		if err != nil {
			s.logError(opCreate, "render_failed", err, zap.String("tenant_id", request.TenantID.String()))
			return newServiceError(opCreate, "render_failed", err)
		}

		ref, err := s.messages.Create(ctx, settings.ChannelID, rendered)
		if err != nil {
			s.logError(opCreate, "message_create_failed", err,
				zap.String("tenant_id", request.TenantID.String()),
				zap.String("channel_id", settings.ChannelID))
			return fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}

		created = Suggestion{
			TenantID:         request.TenantID.String(),
			ID:               id.Int64(),
			AuthorID:         request.AuthorID.String(),
			ChannelID:        ref.ChannelID,
			MessageID:        ref.MessageID,
			Content:          content,
			CreatedAtSeconds: createdAt.Unix(),
		}
		if err := s.allocator.Commit(ctx, &created); err != nil {
			s.logError(opCreate, "insert_failed", err,
				zap.String("tenant_id", request.TenantID.String()),
				zap.Int64("suggestion_id", id.Int64()))
			return newServiceError(opCreate, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.recordEvent(ctx, created, EventOperationCreated, created.AuthorID, "")

	// Reactions and thread creation run outside the tenant slot; failures
	// are reported to the caller but never undo the creation.
	warnings := s.applyCreateExtras(ctx, settings, created)
	return CreateResult{Suggestion: created, Warnings: warnings}, nil
}

func (s *Service) applyCreateExtras(ctx context.Context, settings TenantSettings, created Suggestion) []string {
	var warnings []string
	ref := created.Ref()
	for _, emoji := range settings.Reactions() {
		if err := s.messages.React(ctx, ref, emoji); err != nil {
			s.logError(opCreate, "reaction_failed", err,
				zap.String("tenant_id", created.TenantID),
				zap.Int64("suggestion_id", created.ID),
				zap.String("emoji", emoji))
			warnings = append(warnings, fmt.Sprintf("failed to add reaction %s", emoji))
		}
	}
	if settings.AutoThread {
		name := fmt.Sprintf("Suggestion #%d", created.ID)
		if err := s.messages.StartThread(ctx, ref, name); err != nil {
			s.logError(opCreate, "thread_failed", err,
				zap.String("tenant_id", created.TenantID),
				zap.Int64("suggestion_id", created.ID))
			warnings = append(warnings, "failed to create discussion thread")
		}
	}
	return warnings
}

// EditRequest describes an author updating their open suggestion.
type EditRequest struct {
	TenantID TenantID
	ID       SuggestionID
	AuthorID AuthorID
	Content  string
}

// Edit replaces the submission text of an open suggestion. It is rejected
// with a distinct error once the suggestion is replied to or archived, and
// triggers reconciliation if the rendered message is gone.
func (s *Service) Edit(ctx context.Context, request EditRequest) (Suggestion, error) {
	content := strings.TrimSpace(request.Content)
	if content == "" {
		return Suggestion{}, newServiceError(opEdit, "missing_content", errMissingContent)
	}

	existing, found, err := s.repo.Find(ctx, request.TenantID, request.ID)
	if err != nil {
		s.logError(opEdit, "find_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opEdit, "find_failed", err)
	}
	if !found {
		return Suggestion{}, ErrNotFound
	}
	if err := guardEdit(*existing, request.AuthorID); err != nil {
		return Suggestion{}, err
	}

	settings, found, err := s.repo.Settings(ctx, request.TenantID)
	if err != nil {
		s.logError(opEdit, "settings_lookup_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opEdit, "settings_lookup_failed", err)
	}
	if !found || !settings.Configured() {
		return Suggestion{}, ErrNotConfigured
	}

	current, err := s.messages.Fetch(ctx, existing.Ref())
	if err != nil {
		return Suggestion{}, s.handleArtifactError(ctx, opEdit, *existing, request.AuthorID.String(), err)
	}

	rendered, err := s.renderer.RenderEdit(settings, current, MessageData{
		ID:        request.ID,
		TenantID:  request.TenantID,
		AuthorID:  request.AuthorID,
		Content:   content,
		CreatedAt: time.Unix(existing.CreatedAtSeconds, 0).UTC(),
	})
	if err != nil {
		s.logError(opEdit, "render_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opEdit, "render_failed", err)
	}
	if err := s.messages.Update(ctx, existing.Ref(), rendered); err != nil {
		return Suggestion{}, s.handleArtifactError(ctx, opEdit, *existing, request.AuthorID.String(), err)
	}

	updated, err := s.repo.UpdateContent(ctx, request.TenantID, request.ID, content)
	if err != nil {
		s.logError(opEdit, "content_update_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opEdit, "content_update_failed", err)
	}
	if !updated {
		// The record left the open state between the guard and the update;
		// the persistence predicate kept the frozen content intact.
		return Suggestion{}, s.refreshedStateError(ctx, opEdit, request.TenantID, request.ID)
	}
	existing.Content = content

	s.recordEvent(ctx, *existing, EventOperationEdited, request.AuthorID.String(), "")
	return *existing, nil
}

// ResolveRequest describes a moderator resolution.
type ResolveRequest struct {
	TenantID    TenantID
	ID          SuggestionID
	ModeratorID AuthorID
	Action      ResolveAction
	Response    string
}

// Resolve applies a moderator decision. The replied timestamp is a
// write-once conditional update, so of two concurrent resolutions exactly
// one wins and the loser observes ErrReplied. The response is appended to
// the rendered message; the submission text is never rewritten.
func (s *Service) Resolve(ctx context.Context, request ResolveRequest) (Suggestion, error) {
	existing, found, err := s.repo.Find(ctx, request.TenantID, request.ID)
	if err != nil {
		s.logError(opResolve, "find_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opResolve, "find_failed", err)
	}
	if !found {
		return Suggestion{}, ErrNotFound
	}
	// Fail fast on archived suggestions before any external call.
	if err := guardResolve(*existing); err != nil {
		return Suggestion{}, err
	}

	settings, found, err := s.repo.Settings(ctx, request.TenantID)
	if err != nil {
		s.logError(opResolve, "settings_lookup_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opResolve, "settings_lookup_failed", err)
	}
	if !found || !settings.Configured() {
		return Suggestion{}, ErrNotConfigured
	}

	current, err := s.messages.Fetch(ctx, existing.Ref())
	if err != nil {
		return Suggestion{}, s.handleArtifactError(ctx, opResolve, *existing, request.ModeratorID.String(), err)
	}

	rendered, err := s.renderer.RenderResolution(settings, current, ResolutionData{
		ID:       request.ID,
		Action:   request.Action,
		Response: request.Response,
	})
	if err != nil {
		s.logError(opResolve, "render_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opResolve, "render_failed", err)
	}

	repliedAt := s.clock().UTC()
	won, err := s.repo.MarkReplied(ctx, request.TenantID, request.ID, repliedAt, request.Action, request.Response)
	if err != nil {
		s.logError(opResolve, "replied_update_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opResolve, "replied_update_failed", err)
	}
	if !won {
		// Lost either to an earlier resolution or to an archive that landed
		// after the fail-fast guard; report which.
		return Suggestion{}, s.refreshedStateError(ctx, opResolve, request.TenantID, request.ID)
	}

	repliedAtSeconds := repliedAt.Unix()
	existing.RepliedAtSeconds = &repliedAtSeconds
	existing.RepliedAction = request.Action.String()
	existing.RepliedResponse = request.Response

	s.recordEvent(ctx, *existing, EventOperationResolved, request.ModeratorID.String(), request.Action.String())

	if err := s.messages.Update(ctx, existing.Ref(), rendered); err != nil {
		return Suggestion{}, s.handleArtifactError(ctx, opResolve, *existing, request.ModeratorID.String(), err)
	}
	return *existing, nil
}

// ArchiveRequest describes an explicit archive action.
type ArchiveRequest struct {
	TenantID TenantID
	ID       SuggestionID
	ActorID  AuthorID
}

// Archive moves the suggestion to its terminal state. Archiving an already
// archived suggestion succeeds and returns the stored record; the external
// message cleanup is best effort.
func (s *Service) Archive(ctx context.Context, request ArchiveRequest) (Suggestion, error) {
	existing, found, err := s.repo.Find(ctx, request.TenantID, request.ID)
	if err != nil {
		s.logError(opArchive, "find_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opArchive, "find_failed", err)
	}
	if !found {
		return Suggestion{}, ErrNotFound
	}
	if err := guardArchive(*existing); err != nil {
		return Suggestion{}, err
	}

	archivedAt := s.clock().UTC()
	transitioned, err := s.repo.MarkArchived(ctx, request.TenantID, request.ID, archivedAt)
	if err != nil {
		s.logError(opArchive, "archived_update_failed", err, s.idFields(request.TenantID, request.ID)...)
		return Suggestion{}, newServiceError(opArchive, "archived_update_failed", err)
	}
	if !transitioned {
		if refreshed, stillFound, refreshErr := s.repo.Find(ctx, request.TenantID, request.ID); refreshErr == nil && stillFound {
			existing = refreshed
		}
		return *existing, nil
	}

	archivedAtSeconds := archivedAt.Unix()
	existing.ArchivedAtSeconds = &archivedAtSeconds
	s.recordEvent(ctx, *existing, EventOperationArchived, request.ActorID.String(), "moderator")

	s.stripArchivedMessage(ctx, *existing)
	return *existing, nil
}

// stripArchivedMessage removes interactive components from the rendered
// message. The record is already terminal, so any failure here is logged and
// swallowed.
func (s *Service) stripArchivedMessage(ctx context.Context, archived Suggestion) {
	current, err := s.messages.Fetch(ctx, archived.Ref())
	if err != nil {
		if !errors.Is(err, ErrArtifactNotFound) {
			s.logError(opArchive, "message_fetch_failed", err,
				zap.String("tenant_id", archived.TenantID),
				zap.Int64("suggestion_id", archived.ID))
		}
		return
	}
	rendered, err := s.renderer.RenderArchived(current)
	if err != nil {
		s.logError(opArchive, "render_failed", err,
			zap.String("tenant_id", archived.TenantID),
			zap.Int64("suggestion_id", archived.ID))
		return
	}
	if err := s.messages.Update(ctx, archived.Ref(), rendered); err != nil && !errors.Is(err, ErrArtifactNotFound) {
		s.logError(opArchive, "message_update_failed", err,
			zap.String("tenant_id", archived.TenantID),
			zap.Int64("suggestion_id", archived.ID))
	}
}

// refreshedStateError re-reads a record after a conditional update matched
// no open row and maps the state it finds to the matching domain error, so a
// caller losing a race learns the precise reason. Archived wins over
// Replied, mirroring State().
func (s *Service) refreshedStateError(ctx context.Context, operation string, tenant TenantID, id SuggestionID) error {
	refreshed, found, err := s.repo.Find(ctx, tenant, id)
	if err != nil {
		s.logError(operation, "refresh_failed", err, s.idFields(tenant, id)...)
		return newServiceError(operation, "refresh_failed", err)
	}
	if !found {
		return ErrNotFound
	}
	switch refreshed.State() {
	case StateArchived:
		return ErrArchived
	case StateReplied:
		return ErrReplied
	default:
		return newServiceError(operation, "conditional_update_lost", errConcurrentUpdate)
	}
}

// handleArtifactError translates MessageStore failures. A missing artifact
// archives the record idempotently and surfaces ErrArtifactMissing so the
// caller knows the state changed underneath the operation; transport
// failures pass through untouched for the caller to retry.
func (s *Service) handleArtifactError(ctx context.Context, operation string, existing Suggestion, actor string, cause error) error {
	if !errors.Is(cause, ErrArtifactNotFound) {
		s.logError(operation, "message_store_failed", cause,
			zap.String("tenant_id", existing.TenantID),
			zap.Int64("suggestion_id", existing.ID))
		return cause
	}

	tenant := TenantID(existing.TenantID)
	id := SuggestionID(existing.ID)
	transitioned, err := s.repo.MarkArchived(ctx, tenant, id, s.clock().UTC())
	if err != nil {
		s.logError(operation, "reconcile_archive_failed", err,
			zap.String("tenant_id", existing.TenantID),
			zap.Int64("suggestion_id", existing.ID))
		return newServiceError(operation, "reconcile_archive_failed", err)
	}
	if transitioned {
		s.logger.Info("suggestion archived after missing artifact",
			zap.String("tenant_id", existing.TenantID),
			zap.Int64("suggestion_id", existing.ID),
			zap.String("operation", operation))
		s.recordEvent(ctx, existing, EventOperationArchived, actor, "artifact_missing")
	}
	return ErrArtifactMissing
}

// recordEvent appends to the audit trail. The trail is advisory, so
// failures are logged rather than failing the operation that produced them.
func (s *Service) recordEvent(ctx context.Context, suggestion Suggestion, operation EventOperation, actor, detail string) {
	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAudit, "id_generation_failed", err,
			zap.String("tenant_id", suggestion.TenantID),
			zap.Int64("suggestion_id", suggestion.ID))
		return
	}
	event := &SuggestionEvent{
		EventID:           eventID,
		TenantID:          suggestion.TenantID,
		SuggestionID:      suggestion.ID,
		ActorID:           actor,
		Operation:         operation,
		Detail:            detail,
		OccurredAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		s.logError(opAudit, "event_insert_failed", err,
			zap.String("tenant_id", suggestion.TenantID),
			zap.Int64("suggestion_id", suggestion.ID))
	}
}

func (s *Service) idFields(tenant TenantID, id SuggestionID) []zap.Field {
	return []zap.Field{
		zap.String("tenant_id", tenant.String()),
		zap.Int64("suggestion_id", id.Int64()),
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("suggestion engine error", attrs...)
}
