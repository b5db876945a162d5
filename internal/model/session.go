package model

import "slices"

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is a one-shot notice shown on the next render.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// Session is the state of one signed-in browser. Records caches the user's
// repository contents newest first: it is reloaded wholesale on sign-in and
// patched by document id after each mutation.
type Session struct {
	ID            string   `json:"id"`
	Authenticated bool     `json:"authenticated"`
	UserEmail     string   `json:"user_email"`
	Records       []Record `json:"records"`
	Flash         *Flash   `json:"flash,omitempty"`
}

func NewSession(id string) *Session {
	return &Session{ID: id}
}

func (s *Session) SignIn(email string) {
	s.Authenticated = true
	s.UserEmail = email
	s.Records = nil
	s.Flash = nil
}

func (s *Session) Clear() {
	s.Authenticated = false
	s.UserEmail = ""
	s.Records = nil
	s.Flash = nil
}

// Prepend puts a freshly created record at the top of the list.
func (s *Session) Prepend(r Record) {
	s.Records = slices.Insert(s.Records, 0, r)
}

// Record returns the cached record with the given document id.
func (s *Session) Record(documentID string) (*Record, bool) {
	i := s.indexOf(documentID)
	if i < 0 {
		return nil, false
	}
	return &s.Records[i], true
}

// Remove drops the record with the given document id, reporting whether it
// was present.
func (s *Session) Remove(documentID string) bool {
	i := s.indexOf(documentID)
	if i < 0 {
		return false
	}
	s.Records = slices.Delete(s.Records, i, i+1)
	return true
}

// ReferencesResume reports whether any cached record points at filename.
func (s *Session) ReferencesResume(filename string) bool {
	for _, r := range s.Records {
		if r.HasResume() && r.ResumeFilename == filename {
			return true
		}
	}
	return false
}

func (s *Session) SetFlash(kind FlashKind, message string) {
	s.Flash = &Flash{Kind: kind, Message: message}
}

// TakeFlash returns the pending flash and clears it.
func (s *Session) TakeFlash() *Flash {
	f := s.Flash
	s.Flash = nil
	return f
}

func (s *Session) indexOf(documentID string) int {
	if documentID == "" {
		return -1
	}
	return slices.IndexFunc(s.Records, func(r Record) bool {
		return r.DocumentID == documentID
	})
}
