package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/repository"
	"github.com/examsync/exam-bridge-api/pkg/classifier"
	"github.com/examsync/exam-bridge-api/pkg/config"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/idempotency"
)

type artifactStore interface {
	Create(ctx context.Context, artifact *models.Artifact, entries []*models.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
	FindLiveByTuple(ctx context.Context, registerNumber, subjectCode, examRound string) ([]models.Artifact, error)
	List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, error)
	Count(ctx context.Context, filter models.ArtifactFilter) (int, error)
	Stats(ctx context.Context) (*models.ArtifactStats, error)
	Transition(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, to models.WorkflowStatus, entry *models.LedgerEntry) error
	Replace(ctx context.Context, params repository.ReplaceParams) error
	ClearTransactionID(ctx context.Context, artifact *models.Artifact, entry *models.LedgerEntry) error
	UnlockSecondAttempt(ctx context.Context, artifact *models.Artifact, entry *models.LedgerEntry) error
	RecordStudentSubmit(ctx context.Context, artifact *models.Artifact, transactionID string, entry *models.LedgerEntry) error
}

type contentStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) bool
}

type opticalClassifier interface {
	Classify(ctx context.Context, data []byte) (*classifier.Result, error)
}

type ledgerAppender interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	ListByArtifact(ctx context.Context, artifactID string) ([]models.LedgerEntry, error)
}

type statsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

var (
	registerPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{2,4}[0-9]{3,6}$`)
	subjectPattern  = regexp.MustCompile(`^[A-Z]{2,4}[0-9]{2,4}[A-Z]?$`)
)

const artifactStatsCacheKey = "exam-bridge:stats:artifacts"

// ArtifactService owns the artifact lifecycle from intake to the terminal
// states.
type ArtifactService struct {
	repo       artifactStore
	content    contentStore
	ledger     ledgerAppender
	classifier opticalClassifier
	cache      statsCache
	queue      queueReleaser
	notifier   intakeNotifier
	storageCfg config.StorageConfig
	minConf    float64
	cacheTTL   time.Duration
	logger     *zap.Logger
}

type intakeNotifier interface {
	NotifyReceived(artifact *models.Artifact)
}

// queueReleaser retires any open queue entry while an artifact is pulled back
// to PENDING_REVIEW, in the same transaction as the status change.
type queueReleaser interface {
	AbortForReset(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, note string, entry *models.LedgerEntry) error
}

// SetNotifier attaches the optional receipt-mail dispatcher.
func (s *ArtifactService) SetNotifier(n intakeNotifier) { s.notifier = n }

// NewArtifactService constructs the service.
func NewArtifactService(
	repo artifactStore,
	content contentStore,
	ledger ledgerAppender,
	optical opticalClassifier,
	cache statsCache,
	queue queueReleaser,
	storageCfg config.StorageConfig,
	classifierCfg config.ClassifierConfig,
	statsCfg config.StatsConfig,
	logger *zap.Logger,
) *ArtifactService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := statsCfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ArtifactService{
		repo:       repo,
		content:    content,
		ledger:     ledger,
		classifier: optical,
		cache:      cache,
		queue:      queue,
		storageCfg: storageCfg,
		minConf:    classifierCfg.MinConfidence,
		cacheTTL:   ttl,
		logger:     logger,
	}
}

// IntakeParams carries one scanned file into the store.
type IntakeParams struct {
	Filename  string
	MimeType  string
	Data      []byte
	ExamRound string
	Actor     models.Actor
	BulkBatch string
}

// Intake validates, identifies, stores, and registers one scanned paper. The
// returned result is shaped for per-file reporting so bulk callers can keep
// going when one file fails.
func (s *ArtifactService) Intake(ctx context.Context, params IntakeParams) (*dto.IntakeResult, error) {
	if err := s.validateFile(params); err != nil {
		return nil, err
	}
	round := strings.ToUpper(strings.TrimSpace(params.ExamRound))
	if round == "" {
		round = models.RoundCIA1
	}

	registerNumber, subjectCode, err := s.identify(ctx, params.Filename, params.Data)
	if err != nil {
		return nil, err
	}

	live, err := s.repo.FindLiveByTuple(ctx, registerNumber, subjectCode, round)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to probe existing uploads")
	}
	attempt := len(live) + 1
	if attempt > models.MaxAttemptNumber {
		return nil, appErrors.Clone(appErrors.ErrConflict, "all attempt slots are already occupied for this paper")
	}
	if attempt == models.MaxAttemptNumber && live[0].Attempt2Locked {
		return nil, appErrors.ErrLockedAttempt
	}

	sum := sha256.Sum256(params.Data)
	contentRef, err := s.content.Put(ctx, params.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scan content")
	}

	transactionID := idempotency.AttemptKey(registerNumber, subjectCode, attempt)
	artifact := &models.Artifact{
		RegisterNumber:   &registerNumber,
		SubjectCode:      &subjectCode,
		ExamRound:        round,
		AttemptNumber:    attempt,
		TransactionID:    &transactionID,
		ContentRef:       contentRef,
		ContentHash:      hex.EncodeToString(sum[:]),
		OriginalFilename: normalizedFilename(registerNumber, subjectCode, params.Filename),
		RawFilename:      params.Filename,
		SizeBytes:        int64(len(params.Data)),
		MimeType:         params.MimeType,
		Status:           models.StatusPendingReview,
		// The retake slot ships closed; only an explicit staff unlock opens it.
		Attempt2Locked: true,
		UploadedBy:     params.Actor.Username,
	}
	artifact.AppendLog(models.ActionFileUploaded, map[string]interface{}{
		"raw_filename": params.Filename,
		"attempt":      attempt,
	})

	entry := ledgerEntryFor(params.Actor, models.ActionFileUploaded, models.CategoryUpload, &artifact.ID,
		fmt.Sprintf("uploaded scan for %s/%s round %s attempt %d", registerNumber, subjectCode, round, attempt))
	if params.BulkBatch != "" {
		entry.TargetType = strPtr("bulk_batch")
		entry.TargetID = &params.BulkBatch
	}

	if err := s.repo.Create(ctx, artifact, []*models.LedgerEntry{entry}); err != nil {
		s.content.Delete(ctx, contentRef)
		switch {
		case errors.Is(err, repository.ErrDuplicateSlot):
			return nil, appErrors.Clone(appErrors.ErrConflict, "a live upload already exists for this register, subject, and round")
		case errors.Is(err, repository.ErrDuplicateTransaction):
			return nil, appErrors.Clone(appErrors.ErrConflict, "transaction id is held by another live upload")
		case errors.Is(err, repository.ErrSecondAttemptLocked):
			return nil, appErrors.ErrLockedAttempt
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register artifact")
		}
	}

	s.logger.Info("artifact ingested",
		zap.String("artifactId", artifact.ID),
		zap.String("register", registerNumber),
		zap.String("subject", subjectCode),
		zap.Int("attempt", attempt))

	if s.notifier != nil {
		s.notifier.NotifyReceived(artifact)
	}

	return &dto.IntakeResult{
		Success:        true,
		Filename:       params.Filename,
		Message:        "uploaded",
		ArtifactID:     artifact.ID,
		RegisterNumber: registerNumber,
		SubjectCode:    subjectCode,
		ExamRound:      round,
		AttemptNumber:  attempt,
		Status:         string(artifact.Status),
	}, nil
}

// BulkIntake processes many files with per-file isolation: one bad scan never
// aborts the batch.
func (s *ArtifactService) BulkIntake(ctx context.Context, files []IntakeParams, actor models.Actor) (*dto.BulkIntakeResult, error) {
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files supplied")
	}
	batchID := fmt.Sprintf("bulk-%d", time.Now().UTC().UnixNano())
	result := &dto.BulkIntakeResult{TotalFiles: len(files)}

	for i := range files {
		files[i].Actor = actor
		files[i].BulkBatch = batchID
		item, err := s.Intake(ctx, files[i])
		if err != nil {
			appErr := appErrors.FromError(err)
			result.Failed++
			result.Results = append(result.Results, dto.IntakeResult{
				Success:  false,
				Filename: files[i].Filename,
				Message:  appErr.Message,
				Errors:   []string{appErr.Code},
			})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, *item)
	}

	summary := ledgerEntryFor(actor, models.ActionBulkUpload, models.CategoryUpload, nil,
		fmt.Sprintf("bulk upload of %d files: %d ok, %d failed", result.TotalFiles, result.Successful, result.Failed))
	summary.TargetType = strPtr("bulk_batch")
	summary.TargetID = &batchID
	if data, err := json.Marshal(result); err == nil {
		summary.ResponseData = data
	}
	if err := s.ledger.Insert(ctx, summary); err != nil {
		s.logger.Warn("failed to record bulk upload summary", zap.Error(err))
	}
	return result, nil
}

func (s *ArtifactService) validateFile(params IntakeParams) error {
	if len(params.Data) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if max := s.storageCfg.MaxFileSizeBytes; max > 0 && int64(len(params.Data)) > max {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", max))
	}
	if len(s.storageCfg.AllowedMIMEs) > 0 {
		allowed := false
		for _, mime := range s.storageCfg.AllowedMIMEs {
			if strings.EqualFold(mime, params.MimeType) {
				allowed = true
				break
			}
		}
		if !allowed {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type %q", params.MimeType))
		}
	}
	return nil
}

// identify extracts (register, subject) from the filename, falling back to
// the optical classifier when the name does not carry them.
func (s *ArtifactService) identify(ctx context.Context, filename string, data []byte) (string, string, error) {
	if register, subject, ok := parseScanFilename(filename); ok {
		return register, subject, nil
	}
	if s.classifier != nil {
		result, err := s.classifier.Classify(ctx, data)
		if err != nil {
			s.logger.Warn("classifier unavailable", zap.String("filename", filename), zap.Error(err))
		} else if result != nil && result.Confidence >= s.minConf &&
			registerPattern.MatchString(strings.ToUpper(result.RegisterNumber)) &&
			subjectPattern.MatchString(strings.ToUpper(result.SubjectCode)) {
			return strings.ToUpper(result.RegisterNumber), strings.ToUpper(result.SubjectCode), nil
		}
	}
	return "", "", appErrors.Clone(appErrors.ErrValidation,
		"could not determine register number and subject code; name the file REGISTER_SUBJECT.pdf")
}

// parseScanFilename accepts REGISTER_SUBJECT.ext, case-insensitive.
func parseScanFilename(filename string) (string, string, bool) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(strings.ToUpper(base), "_")
	if len(parts) < 2 {
		return "", "", false
	}
	register, subject := parts[0], parts[1]
	if !registerPattern.MatchString(register) || !subjectPattern.MatchString(subject) {
		return "", "", false
	}
	return register, subject, true
}

func normalizedFilename(registerNumber, subjectCode, raw string) string {
	ext := strings.ToLower(filepath.Ext(raw))
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("%s_%s%s", registerNumber, subjectCode, ext)
}

// Get loads one artifact.
func (s *ArtifactService) Get(ctx context.Context, id string) (*models.Artifact, error) {
	artifact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
	}
	return artifact, nil
}

// Content streams the stored scan bytes for an artifact.
func (s *ArtifactService) Content(ctx context.Context, id string) ([]byte, *models.Artifact, error) {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.content.Get(ctx, artifact.ContentRef)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read scan content")
	}
	return data, artifact, nil
}

// List returns a filtered page plus the total count.
func (s *ArtifactService) List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, int, error) {
	artifacts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list artifacts")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count artifacts")
	}
	return artifacts, total, nil
}

// Stats returns dashboard counters, served from cache when fresh.
func (s *ArtifactService) Stats(ctx context.Context) (*models.ArtifactStats, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, artifactStatsCacheKey); err == nil && cached != "" {
			stats := &models.ArtifactStats{}
			if err := json.Unmarshal([]byte(cached), stats); err == nil {
				return stats, nil
			}
		}
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stats")
	}
	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, artifactStatsCacheKey, string(data), s.cacheTTL); err != nil {
				s.logger.Debug("stats cache write failed", zap.Error(err))
			}
		}
	}
	return stats, nil
}

// CheckDuplicates answers slot-occupancy probes ahead of an upload.
func (s *ArtifactService) CheckDuplicates(ctx context.Context, items []dto.ProbeItem) ([]models.DuplicateProbe, error) {
	probes := make([]models.DuplicateProbe, 0, len(items))
	for _, item := range items {
		register := strings.ToUpper(strings.TrimSpace(item.RegisterNumber))
		subject := strings.ToUpper(strings.TrimSpace(item.SubjectCode))
		round := strings.ToUpper(strings.TrimSpace(item.ExamRound))
		if round == "" {
			round = models.RoundCIA1
		}
		live, err := s.repo.FindLiveByTuple(ctx, register, subject, round)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to probe slot")
		}
		probe := models.DuplicateProbe{
			RegisterNumber: register,
			SubjectCode:    subject,
			ExamRound:      round,
			Exists:         len(live) > 0,
		}
		for i := range live {
			if live[i].AttemptNumber > probe.MaxAttempt {
				probe.MaxAttempt = live[i].AttemptNumber
			}
			if live[i].AttemptNumber == 1 {
				probe.Status = &live[i].Status
				probe.UploadedAt = &live[i].UploadedAt
				probe.Attempt2Locked = live[i].Attempt2Locked
			}
		}
		probe.CanUploadAsAttempt2 = len(live) == 1 && !probe.Attempt2Locked
		probes = append(probes, probe)
	}
	return probes, nil
}

// Replace swaps in corrected metadata copy-on-write style: the old artifact is
// superseded, a new one is created sharing the same content, and report
// history follows the new artifact.
func (s *ArtifactService) Replace(ctx context.Context, id string, req dto.ReplaceArtifactRequest, actor models.Actor) (*models.Artifact, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.Status.CanTransitionTo(models.StatusSuperseded) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("artifact in state %s cannot be replaced", old.Status))
	}

	replacement := *old
	replacement.ID = ""
	replacement.Seq = 0
	replacement.Status = models.StatusPendingReview
	replacement.ExternalUserID = nil
	replacement.ExternalAssignmentID = nil
	replacement.ExternalSubmissionID = nil
	replacement.RetryCount = 0
	replacement.LastError = nil
	replacement.SubmittedAt = nil
	replacement.UploadedBy = actor.Username
	replacement.UploadedAt = time.Now().UTC()
	replacement.TransactionLog = models.TransactionLog{}
	if req.RegisterNumber != nil {
		v := strings.ToUpper(strings.TrimSpace(*req.RegisterNumber))
		if !registerPattern.MatchString(v) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid register number")
		}
		replacement.RegisterNumber = &v
	}
	if req.SubjectCode != nil {
		v := strings.ToUpper(strings.TrimSpace(*req.SubjectCode))
		if !subjectPattern.MatchString(v) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subject code")
		}
		replacement.SubjectCode = &v
	}
	if req.OriginalFilename != nil && strings.TrimSpace(*req.OriginalFilename) != "" {
		replacement.OriginalFilename = strings.TrimSpace(*req.OriginalFilename)
	}
	txid := idempotency.AttemptKey(replacement.Register(), replacement.Subject(), replacement.AttemptNumber)
	replacement.TransactionID = &txid
	replacement.AppendLog(models.ActionAdminReplace, map[string]interface{}{
		"replaces": old.ID,
	})
	old.AppendLog(models.ActionAdminReplace, map[string]interface{}{
		"superseded_by": "pending",
	})

	entries := []*models.LedgerEntry{}
	replaceEntry := ledgerEntryFor(actor, models.ActionAdminReplace, models.CategoryAdmin, &replacement.ID,
		fmt.Sprintf("replaced artifact %s with corrected metadata", old.ID))
	replaceEntry.TargetType = strPtr("artifact")
	replaceEntry.TargetID = &old.ID
	entries = append(entries, replaceEntry)

	if req.ResolveReports {
		ledgerEntries, err := s.ledger.ListByArtifact(ctx, old.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report history")
		}
		for _, report := range models.ProjectReports(ledgerEntries) {
			if report.State != models.ReportOpen {
				continue
			}
			reportID := report.ID
			resolution := ledgerEntryFor(actor, models.ActionReportResolved, models.CategoryReport, &replacement.ID,
				"resolved by metadata replacement")
			resolution.TargetType = strPtr("report")
			resolution.TargetID = &reportID
			entries = append(entries, resolution)
		}
	}

	params := repository.ReplaceParams{
		Old:            old,
		New:            &replacement,
		MigrateReports: true,
		Entries:        entries,
	}
	if err := s.repo.Replace(ctx, params); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return nil, appErrors.Clone(appErrors.ErrConflict, "artifact changed while replacing it")
		case errors.Is(err, repository.ErrDuplicateSlot):
			return nil, appErrors.Clone(appErrors.ErrConflict, "corrected identifiers collide with another live upload")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace artifact")
		}
	}
	return &replacement, nil
}

// Delete soft-deletes an artifact; content and history stay on disk and in
// the ledger.
func (s *ArtifactService) Delete(ctx context.Context, id, reason string, actor models.Actor) error {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !artifact.Status.CanTransitionTo(models.StatusDeleted) {
		return appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("artifact in state %s cannot be deleted", artifact.Status))
	}
	artifact.AppendLog(models.ActionAdminDelete, map[string]interface{}{"reason": reason})
	entry := ledgerEntryFor(actor, models.ActionAdminDelete, models.CategoryAdmin, &artifact.ID,
		fmt.Sprintf("deleted artifact: %s", reason))
	if err := s.repo.Transition(ctx, artifact, []models.WorkflowStatus{artifact.Status}, models.StatusDeleted, entry); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return appErrors.Clone(appErrors.ErrConflict, "artifact changed while deleting it")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete artifact")
	}
	return nil
}

// Reset returns a QUEUED or FAILED artifact to PENDING_REVIEW so intake staff
// can look at it again. Retry counters stay: they are delivery history. Any
// open queue entry is retired in the same transaction, so a pending delivery
// never outlives the reset.
func (s *ArtifactService) Reset(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error) {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if artifact.Status != models.StatusQueued && artifact.Status != models.StatusFailed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("artifact in state %s cannot be reset", artifact.Status))
	}
	artifact.AppendLog(models.ActionAdminReset, nil)
	entry := ledgerEntryFor(actor, models.ActionAdminReset, models.CategoryAdmin, &artifact.ID,
		"reset artifact to pending review")
	from := []models.WorkflowStatus{models.StatusQueued, models.StatusFailed}
	note := fmt.Sprintf("delivery aborted: artifact reset by %s", actor.Username)
	if err := s.queue.AbortForReset(ctx, artifact, from, note, entry); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "artifact changed while resetting it")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset artifact")
	}
	return artifact, nil
}

// ClearTransactionID frees the student transaction id so the student can run
// the LMS confirmation flow again.
func (s *ArtifactService) ClearTransactionID(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error) {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if artifact.TransactionID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "artifact carries no transaction id")
	}
	cleared := *artifact.TransactionID
	artifact.AppendLog(models.ActionClearTransaction, map[string]interface{}{"cleared": cleared})
	entry := ledgerEntryFor(actor, models.ActionClearTransaction, models.CategoryAdmin, &artifact.ID,
		fmt.Sprintf("cleared transaction id %s", cleared))
	if err := s.repo.ClearTransactionID(ctx, artifact, entry); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "transaction id was already cleared")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear transaction id")
	}
	return artifact, nil
}

// UnlockSecondAttempt reopens the attempt-2 gate after staff review.
func (s *ArtifactService) UnlockSecondAttempt(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error) {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !artifact.Attempt2Locked {
		return nil, appErrors.Clone(appErrors.ErrValidation, "second attempt is not locked")
	}
	artifact.AppendLog(models.ActionUnlockAttempt, nil)
	entry := ledgerEntryFor(actor, models.ActionUnlockAttempt, models.CategoryAdmin, &artifact.ID,
		"unlocked second attempt slot")
	if err := s.repo.UnlockSecondAttempt(ctx, artifact, entry); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "second attempt was already unlocked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlock second attempt")
	}
	return artifact, nil
}

// RecordStudentSubmit re-attaches the deterministic transaction id when the
// student confirms the paper through the LMS flow. The id is always derived
// from the artifact's own identity, never taken from the caller.
func (s *ArtifactService) RecordStudentSubmit(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error) {
	artifact, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if artifact.TransactionID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "artifact already carries a transaction id")
	}
	if artifact.Register() == "" || artifact.Subject() == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "artifact has no register number and subject code to derive a transaction id from")
	}
	transactionID := idempotency.AttemptKey(artifact.Register(), artifact.Subject(), artifact.AttemptNumber)
	artifact.AppendLog(models.ActionStudentSubmit, map[string]interface{}{"transaction_id": transactionID})
	entry := ledgerEntryFor(actor, models.ActionStudentSubmit, models.CategoryWorkflow, &artifact.ID,
		"student confirmed the paper")
	if err := s.repo.RecordStudentSubmit(ctx, artifact, transactionID, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateTransaction):
			return nil, appErrors.Clone(appErrors.ErrConflict, "transaction id is held by another live upload")
		case errors.Is(err, repository.ErrStaleState):
			return nil, appErrors.Clone(appErrors.ErrConflict, "artifact changed while recording the submission")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record student submission")
		}
	}
	return artifact, nil
}

func ledgerEntryFor(actor models.Actor, action, category string, artifactID *string, description string) *models.LedgerEntry {
	entry := &models.LedgerEntry{
		Action:        action,
		Category:      category,
		ActorType:     actor.Type,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		ArtifactID:    artifactID,
		Description:   description,
	}
	if actor.IP != "" {
		entry.ActorIP = &actor.IP
	}
	return entry
}

func strPtr(s string) *string { return &s }
