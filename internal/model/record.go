package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the stage a job application has reached.
type Status string

const (
	StatusToApply         Status = "To Apply"
	StatusOnlineTest      Status = "Online Test"
	StatusFirstInterview  Status = "1st Interview"
	StatusSecondInterview Status = "2nd Interview"
	StatusThirdInterview  Status = "3rd Interview"
	StatusOffer           Status = "Offer"
	StatusNoResponse      Status = "No Response"
	StatusRejected        Status = "Rejected"
)

var statuses = []Status{
	StatusToApply,
	StatusOnlineTest,
	StatusFirstInterview,
	StatusSecondInterview,
	StatusThirdInterview,
	StatusOffer,
	StatusNoResponse,
	StatusRejected,
}

// Statuses returns every status in display order.
func Statuses() []Status {
	return slices.Clone(statuses)
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if slices.Contains(statuses, s) {
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// NoResume marks a record without an attachment. It is never a storage key.
const NoResume = "None"

// DateLayout is the calendar-date format used in storage and forms.
const DateLayout = "2006-01-02"

// Record is one tracked job application. DocumentID is assigned by the
// document store on creation and never changes afterwards.
type Record struct {
	DocumentID     string    `json:"document_id"`
	Company        string    `json:"company"`
	Position       string    `json:"position"`
	URL            string    `json:"url"`
	Contact        string    `json:"contact"`
	JobDescription string    `json:"job_description"`
	Status         Status    `json:"status"`
	Date           time.Time `json:"date"`
	ResumeFilename string    `json:"resume_filename"`
}

func (r Record) HasResume() bool {
	return r.ResumeFilename != "" && r.ResumeFilename != NoResume
}

// CalendarDate drops the clock part of t, keeping the date as seen in t's location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SortRecords orders records newest first. Records sharing a date fall back
// to descending document id, which follows creation order for ULIDs.
func SortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.DocumentID, a.DocumentID)
	})
}

// FilterByCompany keeps records whose company contains query, ignoring case.
// An empty query keeps everything.
func FilterByCompany(records []Record, query string) []Record {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Company), query) {
			out = append(out, r)
		}
	}
	return out
}
