package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mycareerbox/internal/attachment"
	"mycareerbox/internal/model"
)

var (
	ErrNotSignedIn   = errors.New("not signed in")
	ErrUnknownRecord = errors.New("record is not loaded in this session")
	ErrInvalidResume = errors.New("resume file is empty or has an unusable name")
)

type RecordRepository interface {
	List(ctx context.Context, userID string) ([]model.Record, error)
	Create(ctx context.Context, userID string, rec model.Record) (string, error)
	UpdateStatus(ctx context.Context, userID, documentID string, status model.Status) error
	Delete(ctx context.Context, userID, documentID string) error
}

type AttachmentStore interface {
	Upload(ctx context.Context, userID, filename string, content []byte, contentType string) error
	Delete(ctx context.Context, userID, filename string) error
	SignedDownloadURL(ctx context.Context, userID, filename string, ttl time.Duration) (string, error)
}

type RecordEventPublisher interface {
	Publish(ctx context.Context, event model.RecordEvent) error
}

type ResumeUpload struct {
	Filename    string
	ContentType string
	Content     []byte
}

type SubmitInput struct {
	Company        string
	Position       string
	URL            string
	Contact        string
	JobDescription string
	Status         model.Status
	// Date defaults to today when zero.
	Date   time.Time
	Resume *ResumeUpload
}

// TrackerService runs the tracker workflows against one Session. Every
// method makes at most one repository or storage round trip for the user's
// action and patches the session's cached records on success only.
type TrackerService struct {
	records      RecordRepository
	attachments  AttachmentStore
	publisher    RecordEventPublisher
	signedURLTTL time.Duration
	now          func() time.Time
}

func NewTrackerService(
	records RecordRepository,
	attachments AttachmentStore,
	publisher RecordEventPublisher,
	signedURLTTL time.Duration,
) *TrackerService {
	if signedURLTTL <= 0 {
		signedURLTTL = time.Hour
	}
	return &TrackerService{
		records:      records,
		attachments:  attachments,
		publisher:    publisher,
		signedURLTTL: signedURLTTL,
		now:          time.Now,
	}
}

// EnsureLoaded fills an empty record cache from the repository.
func (s *TrackerService) EnsureLoaded(ctx context.Context, sess *model.Session) error {
	if !sess.Authenticated {
		return ErrNotSignedIn
	}
	if len(sess.Records) > 0 {
		return nil
	}
	return s.Reload(ctx, sess)
}

// Reload replaces the cache with the repository contents. On failure the
// cache is left empty.
func (s *TrackerService) Reload(ctx context.Context, sess *model.Session) error {
	if !sess.Authenticated {
		return ErrNotSignedIn
	}
	records, err := s.records.List(ctx, sess.UserEmail)
	if err != nil {
		sess.Records = nil
		return err
	}
	sess.Records = records
	return nil
}

// Submit uploads the resume, if any, then writes the record and puts it at
// the top of the cached list.
func (s *TrackerService) Submit(ctx context.Context, sess *model.Session, in SubmitInput) (*model.Record, error) {
	if !sess.Authenticated {
		return nil, ErrNotSignedIn
	}

	rec := model.Record{
		Company:        strings.TrimSpace(in.Company),
		Position:       strings.TrimSpace(in.Position),
		URL:            strings.TrimSpace(in.URL),
		Contact:        strings.TrimSpace(in.Contact),
		JobDescription: in.JobDescription,
		Status:         in.Status,
		Date:           in.Date,
		ResumeFilename: model.NoResume,
	}
	if rec.Status == "" {
		rec.Status = model.StatusToApply
	}
	if rec.Date.IsZero() {
		rec.Date = model.CalendarDate(s.now())
	}

	uploaded := false
	if in.Resume != nil {
		name := attachment.CleanFilename(in.Resume.Filename)
		if name == "" || len(in.Resume.Content) == 0 {
			return nil, ErrInvalidResume
		}
		if err := s.attachments.Upload(ctx, sess.UserEmail, name, in.Resume.Content, in.Resume.ContentType); err != nil {
			return nil, err
		}
		rec.ResumeFilename = name
		uploaded = true
	}

	documentID, err := s.records.Create(ctx, sess.UserEmail, rec)
	if err != nil {
		if uploaded {
			s.discardOrphan(ctx, sess, rec.ResumeFilename)
		}
		return nil, err
	}

	rec.DocumentID = documentID
	sess.Prepend(rec)
	s.publish(ctx, sess.UserEmail, model.RecordCreated, rec, "")
	return &rec, nil
}

// UpdateStatus changes one record's status. It reports false without touching
// the repository when the status is unchanged.
func (s *TrackerService) UpdateStatus(ctx context.Context, sess *model.Session, documentID string, status model.Status) (bool, error) {
	if !sess.Authenticated {
		return false, ErrNotSignedIn
	}
	rec, ok := sess.Record(documentID)
	if !ok {
		return false, ErrUnknownRecord
	}
	if rec.Status == status {
		return false, nil
	}

	if err := s.records.UpdateStatus(ctx, sess.UserEmail, documentID, status); err != nil {
		return false, err
	}

	previous := rec.Status
	rec.Status = status
	s.publish(ctx, sess.UserEmail, model.RecordStatusChanged, *rec,
		fmt.Sprintf("status changed from %s to %s", previous, status))
	return true, nil
}

// Delete removes a record from the repository and then from the cache.
func (s *TrackerService) Delete(ctx context.Context, sess *model.Session, documentID string) error {
	if !sess.Authenticated {
		return ErrNotSignedIn
	}
	rec, ok := sess.Record(documentID)
	if !ok {
		return ErrUnknownRecord
	}
	removed := *rec

	if err := s.records.Delete(ctx, sess.UserEmail, documentID); err != nil {
		return err
	}
	sess.Remove(documentID)
	s.publish(ctx, sess.UserEmail, model.RecordDeleted, removed, "")
	return nil
}

// ResumeURL signs a fresh download link for the record's attachment. It
// returns "" for records without one.
func (s *TrackerService) ResumeURL(ctx context.Context, sess *model.Session, rec model.Record) (string, error) {
	if !rec.HasResume() {
		return "", nil
	}
	return s.attachments.SignedDownloadURL(ctx, sess.UserEmail, rec.ResumeFilename, s.signedURLTTL)
}

// discardOrphan deletes a just-uploaded resume whose record could not be
// written, unless an existing record already uses that filename.
func (s *TrackerService) discardOrphan(ctx context.Context, sess *model.Session, filename string) {
	if sess.ReferencesResume(filename) {
		return
	}
	if err := s.attachments.Delete(ctx, sess.UserEmail, filename); err != nil {
		log.Printf("remove orphaned resume %s for %s failed: %v", filename, sess.UserEmail, err)
	}
}

func (s *TrackerService) publish(ctx context.Context, email string, eventType model.RecordEventType, rec model.Record, details string) {
	if s.publisher == nil {
		return
	}
	event := model.RecordEvent{
		UserEmail:  email,
		DocumentID: rec.DocumentID,
		EventType:  eventType,
		Company:    rec.Company,
		Details:    details,
		CreatedAt:  s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("publish record event failed: %v", err)
	}
}
