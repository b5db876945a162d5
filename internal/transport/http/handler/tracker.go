package handler

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mycareerbox/internal/app"
	"mycareerbox/internal/attachment"
	"mycareerbox/internal/model"
	"mycareerbox/internal/transport/http/middleware"
	"mycareerbox/internal/transport/http/view"
)

const maxResumeBytes = 10 << 20

const (
	msgLoadFailed      = "Could not load your applications"
	msgSaved           = "Application saved"
	msgSaveFailed      = "Could not save the application"
	msgUploadFailed    = "Could not upload the resume"
	msgResumeUnusable  = "The resume was not stored: the file is empty or its name cannot be used"
	msgResumeTooLarge  = "Resume files are limited to 10 MB"
	msgBadDate         = "Dates must look like 2024-01-31"
	msgStatusUpdated   = "Status updated"
	msgStatusUnchanged = "Status unchanged"
	msgStatusFailed    = "Could not update the status"
	msgBadStatus       = "Unknown status"
	msgDeleted         = "Application deleted"
	msgDeleteFailed    = "Could not delete the application"
	msgConfirmDelete   = "Tick confirm to delete an application"
	msgUnknownRecord   = "That application is no longer listed, reload and try again"
	msgExportFailed    = "Could not build the spreadsheet"
)

type TrackerHandler struct {
	tracker  *app.TrackerService
	sessions middleware.SessionStore
	now      func() time.Time
}

type recordRow struct {
	Record      model.Record
	ResumeURL   string
	ResumeError bool
}

type trackerPage struct {
	Email          string
	Query          string
	Today          string
	Flash          *model.Flash
	Rows           []recordRow
	ExportURI      template.URL
	ExportFilename string
}

type recordForm struct {
	Company        string `form:"company"`
	Position       string `form:"position"`
	URL            string `form:"url"`
	Contact        string `form:"contact"`
	JobDescription string `form:"job_description"`
	Status         string `form:"status"`
	Date           string `form:"date"`
}

func NewTrackerHandler(tracker *app.TrackerService, sessions middleware.SessionStore) *TrackerHandler {
	return &TrackerHandler{
		tracker:  tracker,
		sessions: sessions,
		now:      time.Now,
	}
}

// View renders the signed-in user's records. The email query parameter is
// kept in the address bar and must match the signed-in user.
func (h *TrackerHandler) View(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	query := c.Query("q")
	if c.Query("email") != sess.UserEmail {
		c.Redirect(http.StatusSeeOther, trackerURL(sess.UserEmail, query))
		return
	}
	h.render(c, sess, query, "")
}

func (h *TrackerHandler) Submit(c *gin.Context) {
	sess := middleware.CurrentSession(c)

	var form recordForm
	_ = c.ShouldBind(&form)

	in := app.SubmitInput{
		Company:        form.Company,
		Position:       form.Position,
		URL:            form.URL,
		Contact:        form.Contact,
		JobDescription: form.JobDescription,
	}
	if strings.TrimSpace(form.Status) != "" {
		status, err := model.ParseStatus(form.Status)
		if err != nil {
			h.redirect(c, sess, model.FlashError, msgBadStatus)
			return
		}
		in.Status = status
	}
	if raw := strings.TrimSpace(form.Date); raw != "" {
		date, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			h.redirect(c, sess, model.FlashError, msgBadDate)
			return
		}
		in.Date = date
	}

	resume, msg := readResume(c)
	if msg != "" {
		h.redirect(c, sess, model.FlashError, msg)
		return
	}
	in.Resume = resume

	if _, err := h.tracker.Submit(c.Request.Context(), sess, in); err != nil {
		log.Printf("submit record for %s failed: %v", sess.UserEmail, err)
		switch {
		case errors.Is(err, app.ErrInvalidResume):
			msg = msgResumeUnusable
		case errors.Is(err, attachment.ErrStorage), errors.Is(err, attachment.ErrNoAttachment):
			msg = msgUploadFailed
		default:
			msg = msgSaveFailed
		}
		h.redirect(c, sess, model.FlashError, msg)
		return
	}
	h.redirect(c, sess, model.FlashSuccess, msgSaved)
}

func (h *TrackerHandler) UpdateStatus(c *gin.Context) {
	sess := middleware.CurrentSession(c)

	status, err := model.ParseStatus(c.PostForm("status"))
	if err != nil {
		h.redirect(c, sess, model.FlashError, msgBadStatus)
		return
	}

	changed, err := h.tracker.UpdateStatus(c.Request.Context(), sess, c.Param("id"), status)
	switch {
	case errors.Is(err, app.ErrUnknownRecord):
		h.redirect(c, sess, model.FlashError, msgUnknownRecord)
	case err != nil:
		log.Printf("update status for %s failed: %v", sess.UserEmail, err)
		h.redirect(c, sess, model.FlashError, msgStatusFailed)
	case !changed:
		h.redirect(c, sess, model.FlashSuccess, msgStatusUnchanged)
	default:
		h.redirect(c, sess, model.FlashSuccess, msgStatusUpdated)
	}
}

func (h *TrackerHandler) Delete(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if c.PostForm("confirm") == "" {
		h.redirect(c, sess, model.FlashError, msgConfirmDelete)
		return
	}

	err := h.tracker.Delete(c.Request.Context(), sess, c.Param("id"))
	switch {
	case errors.Is(err, app.ErrUnknownRecord):
		h.redirect(c, sess, model.FlashError, msgUnknownRecord)
	case err != nil:
		log.Printf("delete record for %s failed: %v", sess.UserEmail, err)
		h.redirect(c, sess, model.FlashError, msgDeleteFailed)
	default:
		h.redirect(c, sess, model.FlashSuccess, msgDeleted)
	}
}

// Export renders the tracker with an inline download link for every loaded
// record. It never reads from the repository.
func (h *TrackerHandler) Export(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if err := h.tracker.EnsureLoaded(c.Request.Context(), sess); err != nil {
		log.Printf("load records for %s failed: %v", sess.UserEmail, err)
		sess.SetFlash(model.FlashError, msgLoadFailed)
		h.render(c, sess, "", "")
		return
	}

	uri, err := app.ExportDataURI(sess.Records)
	if err != nil {
		log.Printf("export records for %s failed: %v", sess.UserEmail, err)
		sess.SetFlash(model.FlashError, msgExportFailed)
		h.render(c, sess, "", "")
		return
	}
	h.render(c, sess, "", template.URL(uri))
}

func (h *TrackerHandler) render(c *gin.Context, sess *model.Session, query string, exportURI template.URL) {
	ctx := c.Request.Context()
	if err := h.tracker.EnsureLoaded(ctx, sess); err != nil {
		log.Printf("load records for %s failed: %v", sess.UserEmail, err)
		sess.SetFlash(model.FlashError, msgLoadFailed)
	}

	page := trackerPage{
		Email:          sess.UserEmail,
		Query:          query,
		Today:          model.CalendarDate(h.now()).Format(model.DateLayout),
		Flash:          sess.TakeFlash(),
		ExportURI:      exportURI,
		ExportFilename: app.ExportFilename,
	}
	for _, rec := range model.FilterByCompany(sess.Records, query) {
		row := recordRow{Record: rec}
		link, err := h.tracker.ResumeURL(ctx, sess, rec)
		if err != nil {
			log.Printf("sign resume link for %s failed: %v", sess.UserEmail, err)
			row.ResumeError = true
		}
		row.ResumeURL = link
		page.Rows = append(page.Rows, row)
	}

	h.save(c, sess)
	c.HTML(http.StatusOK, view.TrackerPage, page)
}

func (h *TrackerHandler) redirect(c *gin.Context, sess *model.Session, kind model.FlashKind, message string) {
	sess.SetFlash(kind, message)
	h.save(c, sess)
	c.Redirect(http.StatusSeeOther, trackerURL(sess.UserEmail, ""))
}

func (h *TrackerHandler) save(c *gin.Context, sess *model.Session) {
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		log.Printf("save session failed: %v", err)
	}
}

// readResume returns the optional resume upload, or a user-facing message
// when the file cannot be accepted.
func readResume(c *gin.Context) (*app.ResumeUpload, string) {
	fh, err := c.FormFile("resume")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, ""
	}
	if err != nil {
		return nil, msgUploadFailed
	}
	if fh.Size > maxResumeBytes {
		return nil, msgResumeTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, msgUploadFailed
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxResumeBytes+1))
	if err != nil {
		return nil, msgUploadFailed
	}
	if len(content) > maxResumeBytes {
		return nil, msgResumeTooLarge
	}

	return &app.ResumeUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	}, ""
}

func trackerURL(email, query string) string {
	v := url.Values{}
	v.Set("email", email)
	if query != "" {
		v.Set("q", query)
	}
	return fmt.Sprintf("/tracker?%s", v.Encode())
}
