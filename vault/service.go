// Package vault composes the encryption engine, the steganographic codec, the
// biometric matcher and the time gate into the document ingest and release
// pipeline.
package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/audit"
	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/coordinator"
	"github.com/root-sector/docvault/engine"
	"github.com/root-sector/docvault/gate"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/keys"
	"github.com/root-sector/docvault/stego"
	"github.com/root-sector/docvault/types"
)

// Dependencies are the collaborators of a Service
type Dependencies struct {
	Engine      interfaces.Engine
	Codec       interfaces.Codec
	Matcher     interfaces.Matcher
	Keys        *keys.Registry
	Documents   interfaces.DocumentStore
	Templates   interfaces.TemplateStore
	Objects     interfaces.ObjectStore
	Attempts    *audit.AttemptLog
	Audit       interfaces.AuditLogger
	Coordinator *coordinator.Coordinator
	Clock       clock.Clock
	Carrier     CarrierSpec
}

// CarrierSpec is the base size of generated carriers
type CarrierSpec struct {
	Width    int
	Height   int
	Channels int
}

// Service is the vault
type Service struct {
	deps   Dependencies
	gate   *gate.Gate
	logger zerolog.Logger
}

// IngestRequest describes a document to store
type IngestRequest struct {
	OwnerID  string
	Filename string
	MIMEType string
	Kind     types.BiometricKind
	Content  []byte
	Window   types.AccessWindow
	// Passphrase selects the passphrase strategy when Strategy is empty
	Passphrase []byte
	Strategy   types.KeyStrategy
}

// AccessRequest asks for the release of a document
type AccessRequest struct {
	DocumentID  string
	RequesterID string
	// Kind defaults to the document's kind
	Kind       types.BiometricKind
	Credential []byte
	Passphrase []byte
}

// NewService creates a vault service
func NewService(deps Dependencies) (*Service, error) {
	switch {
	case deps.Engine == nil, deps.Codec == nil, deps.Matcher == nil, deps.Keys == nil:
		return nil, fmt.Errorf("%w: engine, codec, matcher and key registry are required", types.ErrValidation)
	case deps.Documents == nil, deps.Templates == nil, deps.Objects == nil, deps.Attempts == nil:
		return nil, fmt.Errorf("%w: document, template, object and attempt stores are required", types.ErrValidation)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewStdoutAuditLogger()
	}
	if deps.Coordinator == nil {
		deps.Coordinator = coordinator.NewCoordinator(0, deps.Clock)
	}
	if deps.Carrier.Width <= 0 || deps.Carrier.Height <= 0 {
		deps.Carrier.Width, deps.Carrier.Height = stego.DefaultWidth, stego.DefaultHeight
	}
	if deps.Carrier.Channels == 0 {
		deps.Carrier.Channels = stego.DefaultChannels
	}
	return &Service{
		deps:   deps,
		gate:   gate.New(deps.Clock),
		logger: log.With().Str("component", "vault").Logger(),
	}, nil
}

// IngestDocument encrypts a document, hides it in a generated carrier and
// stores the carrier and the metadata row
func (s *Service) IngestDocument(ctx context.Context, req IngestRequest) (*types.DocumentRecord, error) {
	if req.OwnerID == "" || req.Filename == "" {
		return nil, fmt.Errorf("%w: owner and filename are required", types.ErrValidation)
	}
	if _, err := types.ParseBiometricKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}

	provider, err := s.keyProvider(req)
	if err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	id := uuid.New().String()
	ref := types.KeyRef{OwnerID: req.OwnerID, DocumentID: id, Passphrase: req.Passphrase}

	key, envelope, err := provider.NewKey(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain document key: %w", err)
	}
	defer wipe(key)

	var pkg *types.EncryptedPackage
	var carrierPNG []byte
	err = s.deps.Coordinator.Run(ctx, "ingest:"+id, func(ctx context.Context) error {
		var err error
		pkg, err = s.deps.Engine.Encrypt(req.Content, key, keys.Binding(ref))
		if err != nil {
			return err
		}
		blob, err := engine.MarshalPackage(pkg)
		if err != nil {
			return err
		}
		carrier, err := stego.CarrierFor(len(blob), s.deps.Carrier.Width, s.deps.Carrier.Height, s.deps.Carrier.Channels, stego.NewRandom())
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		embedded, err := s.deps.Codec.Embed(carrier, blob)
		if err != nil {
			return err
		}
		carrierPNG, err = stego.EncodePNG(embedded)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seal document: %w", err)
	}

	record := &types.DocumentRecord{
		ID:        id,
		OwnerID:   req.OwnerID,
		Filename:  req.Filename,
		MIMEType:  req.MIMEType,
		Size:      len(req.Content),
		Kind:      req.Kind,
		ObjectKey: objectKey(req.OwnerID, id),
		Window: types.AccessWindow{
			StartTime: req.Window.StartTime.UTC(),
			EndTime:   req.Window.EndTime.UTC(),
		},
		Status: types.DocumentActive,
		Package: types.PackageMetadata{
			Version:     pkg.Version,
			Nonce:       pkg.Nonce,
			AuthTag:     pkg.AuthTag,
			ContentHash: pkg.ContentHash,
			CreatedAt:   pkg.CreatedAt,
		},
		Key:       *envelope,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.deps.Objects.Put(ctx, record.ObjectKey, carrierPNG); err != nil {
		return nil, fmt.Errorf("failed to store carrier: %w", err)
	}
	if err := s.deps.Documents.Create(ctx, record); err != nil {
		if delErr := s.deps.Objects.Delete(context.WithoutCancel(ctx), record.ObjectKey); delErr != nil {
			s.logger.Error().Err(delErr).Str("documentId", id).Msg("Failed to remove orphaned carrier")
		}
		return nil, fmt.Errorf("failed to store document record: %w", err)
	}

	s.logger.Info().
		Str("documentId", id).
		Str("ownerId", req.OwnerID).
		Str("strategy", string(envelope.Strategy)).
		Int("size", record.Size).
		Int("carrierBytes", len(carrierPNG)).
		Msg("Document ingested")

	event := s.event(audit.EventTypeDocumentIngest, audit.OperationIngest, id)
	event.Context[string(audit.KeyOwnerID)] = req.OwnerID
	event.Context[string(audit.KeyKind)] = string(req.Kind)
	event.Context[string(audit.KeyStrategy)] = string(envelope.Strategy)
	s.logEvent(ctx, event)

	return record.Clone(), nil
}

func (s *Service) keyProvider(req IngestRequest) (interfaces.KeyProvider, error) {
	switch {
	case req.Strategy != "":
		return s.deps.Keys.Get(req.Strategy)
	case len(req.Passphrase) > 0:
		return s.deps.Keys.Get(types.KeyStrategyPassphrase)
	default:
		return s.deps.Keys.Default(), nil
	}
}

// RequestAccess runs the release pipeline. Every call that names a document
// appends exactly one access attempt, whatever the outcome.
func (s *Service) RequestAccess(ctx context.Context, req AccessRequest) (*types.ReleasedDocument, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document id is required", types.ErrValidation)
	}

	attempt := types.AccessAttempt{
		DocumentID: req.DocumentID,
		OwnerID:    req.RequesterID,
	}
	released, denial, err := s.release(ctx, req, &attempt)

	switch {
	case isCancellation(ctx, err, denial):
		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		attempt.FailureReason = types.ReasonCancelled
		denial, err = denied(types.ReasonCancelled, cause), nil
	case err != nil:
		attempt.FailureReason = types.ReasonCorruptedArtifact
		s.logger.Error().Err(err).Str("documentId", req.DocumentID).Msg("Stored document could not be opened")
	case denial != nil:
		attempt.FailureReason = denial.Reason
	default:
		attempt.Succeeded = true
	}
	if denial != nil {
		denial.State = gate.State(attempt.GateState)
		denial.Similarity = attempt.SimilarityScore
	}

	recorded, recErr := s.deps.Attempts.Record(ctx, attempt)
	if recErr != nil {
		if released != nil {
			wipe(released.Content)
		}
		return nil, recErr
	}

	s.logAccess(ctx, recorded)

	if denial != nil {
		return nil, denial
	}
	if err != nil {
		return nil, err
	}
	return released, nil
}

// release runs the pipeline. It returns either a released document, an access
// denial or an internal error, and fills in attempt details as it goes.
func (s *Service) release(ctx context.Context, req AccessRequest, attempt *types.AccessAttempt) (*types.ReleasedDocument, *AccessDeniedError, error) {
	record, err := s.deps.Documents.Get(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, denied(types.ReasonDocumentNotFound, types.ErrNotFound), nil
		}
		if isContextErr(err) {
			return nil, nil, err
		}
		return nil, denied(types.ReasonStoreUnavailable, err), nil
	}
	if record.OwnerID != req.RequesterID {
		s.logger.Warn().
			Str("documentId", req.DocumentID).
			Str("requesterId", req.RequesterID).
			Msg("Access requested by non-owner")
		return nil, denied(types.ReasonDocumentNotFound, types.ErrNotFound), nil
	}

	state, open := s.gate.Open(record)
	attempt.GateState = string(state)
	if !open {
		d := denied(types.ReasonTimeGateClosed, types.ErrTimeGateClosed)
		if state == gate.Revoked {
			d.errs = append(d.errs, types.ErrDocumentRevoked)
		}
		return nil, d, nil
	}

	kind := record.Kind
	if req.Kind != "" && req.Kind != kind {
		return nil, denied(types.ReasonBiometricMismatch, types.ErrBiometricMismatch,
			fmt.Errorf("%w: document requires %s", types.ErrValidation, kind)), nil
	}

	template, err := s.deps.Templates.Get(ctx, record.OwnerID, kind)
	if err != nil {
		if errors.Is(err, types.ErrTemplateNotFound) {
			return nil, denied(types.ReasonTemplateNotFound, types.ErrTemplateNotFound), nil
		}
		if isContextErr(err) {
			return nil, nil, err
		}
		return nil, denied(types.ReasonStoreUnavailable, err), nil
	}

	result, err := s.deps.Matcher.Verify(ctx, req.Credential, template)
	if err != nil {
		return nil, verifyDenial(err), nil
	}
	similarity := result.Similarity
	attempt.SimilarityScore = &similarity
	if !result.IsMatch {
		return nil, denied(types.ReasonBiometricMismatch, types.ErrBiometricMismatch), nil
	}

	ref := types.KeyRef{OwnerID: record.OwnerID, DocumentID: record.ID, Passphrase: req.Passphrase}
	provider, err := s.deps.Keys.Get(record.Key.Strategy)
	if err != nil {
		return nil, nil, artifactError("key strategy", err)
	}
	key, err := provider.RecoverKey(ctx, ref, &record.Key)
	if err != nil {
		if isContextErr(err) {
			return nil, nil, err
		}
		if errors.Is(err, types.ErrValidation) {
			return nil, denied(types.ReasonKeyUnavailable, err), nil
		}
		d := denied(types.ReasonKeyUnavailable, types.ErrProviderUnavailable, err)
		d.Retryable = true
		return nil, d, nil
	}
	defer wipe(key)

	carrierPNG, err := s.deps.Objects.Get(ctx, record.ObjectKey)
	if err != nil {
		if isContextErr(err) {
			return nil, nil, err
		}
		return nil, nil, artifactError("load carrier", err)
	}

	var content []byte
	err = s.deps.Coordinator.Run(ctx, "release:"+record.ID+":"+uuid.NewString(), func(ctx context.Context) error {
		var err error
		content, err = s.open(record, carrierPNG, key, ref)
		return err
	})
	if err != nil {
		wipe(content)
		if isContextErr(err) {
			return nil, nil, err
		}
		if errors.Is(err, types.ErrAuthenticationFailure) && record.Key.Strategy == types.KeyStrategyPassphrase {
			return nil, denied(types.ReasonKeyUnavailable, err), nil
		}
		return nil, nil, err
	}

	return &types.ReleasedDocument{
		DocumentID: record.ID,
		Filename:   record.Filename,
		MIMEType:   record.MIMEType,
		Content:    content,
		Similarity: similarity,
	}, nil, nil
}

// open recovers the plaintext from a stored carrier
func (s *Service) open(record *types.DocumentRecord, carrierPNG, key []byte, ref types.KeyRef) ([]byte, error) {
	carrier, err := stego.DecodePNG(carrierPNG)
	if err != nil {
		return nil, artifactError("decode carrier", err)
	}
	blob, err := s.deps.Codec.Extract(carrier)
	if err != nil {
		return nil, artifactError("extract payload", err)
	}
	pkg, err := engine.UnmarshalPackage(blob)
	if err != nil {
		return nil, artifactError("decode package", err)
	}
	if !bytes.Equal(pkg.Nonce, record.Package.Nonce) ||
		!bytes.Equal(pkg.AuthTag, record.Package.AuthTag) ||
		!bytes.Equal(pkg.ContentHash, record.Package.ContentHash) {
		return nil, artifactError("package metadata", errors.New("carrier package does not match document record"))
	}
	plaintext, err := s.deps.Engine.Decrypt(pkg, key, keys.Binding(ref))
	if err != nil {
		if errors.Is(err, types.ErrAuthenticationFailure) && record.Key.Strategy == types.KeyStrategyPassphrase {
			return nil, err
		}
		return nil, artifactError("decrypt", err)
	}
	return plaintext, nil
}

func verifyDenial(err error) *AccessDeniedError {
	switch {
	case isContextErr(err):
		return denied(types.ReasonCancelled, err)
	case errors.Is(err, types.ErrProviderUnavailable):
		d := denied(types.ReasonProviderUnavailable, err)
		d.Retryable = true
		return d
	case errors.Is(err, types.ErrLowQuality):
		return denied(types.ReasonLowQuality, types.ErrBiometricMismatch, err)
	case errors.Is(err, types.ErrTemplateCorrupted):
		return denied(types.ReasonTemplateCorrupted, types.ErrBiometricMismatch, err)
	default:
		return denied(types.ReasonBiometricMismatch, types.ErrBiometricMismatch, err)
	}
}

func artifactError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrCorruptedArtifact, stage, err)
}

// isCancellation reports whether the request ended because the caller went
// away or the service is shutting down
func isCancellation(ctx context.Context, err error, denial *AccessDeniedError) bool {
	if errors.Is(err, coordinator.ErrShuttingDown) {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	return isContextErr(err) || (denial != nil && denial.Reason == types.ReasonCancelled)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) logAccess(ctx context.Context, attempt *types.AccessAttempt) {
	logEvent := s.logger.Info()
	if !attempt.Succeeded {
		logEvent = s.logger.Warn()
	}
	logEvent.
		Str("documentId", attempt.DocumentID).
		Int64("sequence", attempt.Sequence).
		Bool("succeeded", attempt.Succeeded).
		Str("reason", string(attempt.FailureReason)).
		Str("gateState", attempt.GateState).
		Msg("Access attempt")

	event := s.event(audit.EventTypeDocumentAccess, audit.OperationAccess, attempt.DocumentID)
	event.Timestamp = attempt.Timestamp
	event.Context[string(audit.KeyOwnerID)] = attempt.OwnerID
	if !attempt.Succeeded {
		event.Status = audit.StatusDenied
		event.Context[string(audit.KeyReason)] = string(attempt.FailureReason)
	}
	event.Sequence = attempt.Sequence
	if attempt.SimilarityScore != nil {
		event.Metadata["similarity"] = *attempt.SimilarityScore
	}
	s.logEvent(ctx, event)
}

// UpdateWindow replaces a document's access window. Only the owner may do so.
func (s *Service) UpdateWindow(ctx context.Context, documentID, requesterID string, window types.AccessWindow) error {
	if err := window.Validate(); err != nil {
		return err
	}
	record, err := s.ownedRecord(ctx, documentID, requesterID)
	if err != nil {
		return err
	}
	if record.Status == types.DocumentRevoked {
		return fmt.Errorf("document %s: %w", documentID, types.ErrDocumentRevoked)
	}

	window = types.AccessWindow{StartTime: window.StartTime.UTC(), EndTime: window.EndTime.UTC()}
	if err := s.deps.Documents.UpdateWindow(ctx, documentID, window, s.deps.Clock.Now()); err != nil {
		return fmt.Errorf("failed to update access window: %w", err)
	}

	event := s.event(audit.EventTypeDocumentWindow, audit.OperationUpdate, documentID)
	event.Context[string(audit.KeyOwnerID)] = requesterID
	event.Metadata["startTime"] = window.StartTime
	event.Metadata["endTime"] = window.EndTime
	s.logEvent(ctx, event)
	return nil
}

// RevokeDocument permanently closes a document and deletes its carrier.
// Revoking a revoked document is a no-op.
func (s *Service) RevokeDocument(ctx context.Context, documentID, requesterID string) error {
	record, err := s.ownedRecord(ctx, documentID, requesterID)
	if err != nil {
		return err
	}
	if record.Status == types.DocumentRevoked {
		return nil
	}

	if err := s.deps.Documents.MarkRevoked(ctx, documentID, s.deps.Clock.Now()); err != nil {
		return fmt.Errorf("failed to revoke document: %w", err)
	}
	if err := s.deps.Objects.Delete(ctx, record.ObjectKey); err != nil {
		s.logger.Error().Err(err).Str("documentId", documentID).Msg("Failed to delete carrier of revoked document")
	}
	if provider, err := s.deps.Keys.Get(record.Key.Strategy); err == nil {
		if f, ok := provider.(interfaces.KeyForgetter); ok {
			f.Forget(ctx, types.KeyRef{OwnerID: record.OwnerID, DocumentID: record.ID})
		}
	}

	s.logger.Info().Str("documentId", documentID).Msg("Document revoked")
	event := s.event(audit.EventTypeDocumentRevoke, audit.OperationRevoke, documentID)
	event.Context[string(audit.KeyOwnerID)] = requesterID
	s.logEvent(ctx, event)
	return nil
}

// ownedRecord loads a record and hides it from anyone but its owner
func (s *Service) ownedRecord(ctx context.Context, documentID, requesterID string) (*types.DocumentRecord, error) {
	record, err := s.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != requesterID {
		return nil, fmt.Errorf("document %q: %w", documentID, types.ErrNotFound)
	}
	return record, nil
}

// Enroll registers or replaces the owner's template for kind
func (s *Service) Enroll(ctx context.Context, ownerID string, kind types.BiometricKind, credential []byte) (*types.BiometricTemplate, error) {
	if _, err := types.ParseBiometricKind(string(kind)); err != nil {
		return nil, err
	}
	template, err := s.deps.Matcher.Enroll(ctx, ownerID, kind, credential)
	event := s.event(audit.EventTypeTemplateEnroll, audit.OperationEnroll, "")
	event.Context[string(audit.KeyOwnerID)] = ownerID
	event.Context[string(audit.KeyKind)] = string(kind)
	if err != nil {
		event.Status = audit.StatusFailed
		event.Context[string(audit.KeyError)] = err.Error()
		s.logEvent(ctx, event)
		return nil, err
	}
	event.Metadata["version"] = template.Version
	event.Metadata["quality"] = template.QualityScore
	s.logEvent(ctx, event)
	return template, nil
}

// RemoveTemplate deletes the owner's template for kind
func (s *Service) RemoveTemplate(ctx context.Context, ownerID string, kind types.BiometricKind) error {
	if err := s.deps.Matcher.Remove(ctx, ownerID, kind); err != nil {
		return err
	}
	event := s.event(audit.EventTypeTemplateRemove, audit.OperationRemove, "")
	event.Context[string(audit.KeyOwnerID)] = ownerID
	event.Context[string(audit.KeyKind)] = string(kind)
	s.logEvent(ctx, event)
	return nil
}

// DeleteOwner removes all biometric templates of an owner
func (s *Service) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: owner id is required", types.ErrValidation)
	}
	removed, err := s.deps.Matcher.RemoveOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove templates: %w", err)
	}
	event := s.event(audit.EventTypeOwnerDelete, audit.OperationErasure, "")
	event.Context[string(audit.KeyOwnerID)] = ownerID
	event.Metadata["templatesRemoved"] = removed
	s.logEvent(ctx, event)
	return removed, nil
}

// Attempts returns the access journal of a document
func (s *Service) Attempts(ctx context.Context, documentID string) ([]*types.AccessAttempt, error) {
	return s.deps.Attempts.List(ctx, documentID)
}

// State evaluates the gate state of a document now
func (s *Service) State(ctx context.Context, documentID string) (gate.State, error) {
	record, err := s.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return "", err
	}
	return s.gate.State(record), nil
}

// Documents lists the owner's documents
func (s *Service) Documents(ctx context.Context, ownerID string) ([]*types.DocumentRecord, error) {
	return s.deps.Documents.ListByOwner(ctx, ownerID)
}

// InFlight lists the ingest and release operations currently running
func (s *Service) InFlight() []*coordinator.Process {
	return s.deps.Coordinator.ListProcesses()
}

func (s *Service) event(eventType, operation, documentID string) *types.AuditEvent {
	e := audit.NewAuditEvent(eventType, operation, s.deps.Clock.Now())
	e.DocumentID = documentID
	return e
}

func (s *Service) logEvent(ctx context.Context, event *types.AuditEvent) {
	if err := s.deps.Audit.LogEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error().Err(err).Str("eventType", event.EventType).Msg("Failed to log audit event")
	}
}

func objectKey(ownerID, documentID string) string {
	return "carriers/" + ownerID + "/" + documentID + ".png"
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
