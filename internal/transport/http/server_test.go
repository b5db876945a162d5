package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	appsvc "mycareerbox/internal/app"
	"mycareerbox/internal/cache"
	"mycareerbox/internal/model"
	"mycareerbox/internal/repository"
	"mycareerbox/internal/transport/http/handler"
	"mycareerbox/internal/transport/http/response"
)

const testSecret = "test-secret"

type fakeUsers struct {
	byEmail map[string]*model.User
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return repository.ErrUserExists
	}
	u.ID = uint(len(f.byEmail) + 1)
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.byEmail[email], nil
}

type fakeRecords struct {
	byUser      map[string][]model.Record
	seq         int
	updateCalls int
	listCalls   int
	failList    bool
	failDelete  bool
}

func (f *fakeRecords) List(_ context.Context, userID string) ([]model.Record, error) {
	f.listCalls++
	if f.failList {
		return nil, fmt.Errorf("%w: throttled", repository.ErrRepository)
	}
	out := append([]model.Record(nil), f.byUser[userID]...)
	model.SortRecords(out)
	return out, nil
}

func (f *fakeRecords) Create(_ context.Context, userID string, rec model.Record) (string, error) {
	f.seq++
	rec.DocumentID = fmt.Sprintf("R%03d", f.seq)
	f.byUser[userID] = append(f.byUser[userID], rec)
	return rec.DocumentID, nil
}

func (f *fakeRecords) UpdateStatus(_ context.Context, userID, id string, status model.Status) error {
	f.updateCalls++
	for i := range f.byUser[userID] {
		if f.byUser[userID][i].DocumentID == id {
			f.byUser[userID][i].Status = status
			return nil
		}
	}
	return repository.ErrRecordNotFound
}

func (f *fakeRecords) Delete(_ context.Context, userID, id string) error {
	if f.failDelete {
		return fmt.Errorf("%w: denied", repository.ErrRepository)
	}
	kept := f.byUser[userID][:0]
	for _, r := range f.byUser[userID] {
		if r.DocumentID != id {
			kept = append(kept, r)
		}
	}
	f.byUser[userID] = kept
	return nil
}

type fakeFiles struct {
	objects map[string][]byte
}

func (f *fakeFiles) Upload(_ context.Context, userID, filename string, content []byte, _ string) error {
	f.objects[userID+"/"+filename] = content
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, userID, filename string) error {
	delete(f.objects, userID+"/"+filename)
	return nil
}

func (f *fakeFiles) SignedDownloadURL(_ context.Context, userID, filename string, _ time.Duration) (string, error) {
	return "https://files.test/" + userID + "/" + filename, nil
}

type fakeEvents struct {
	published []model.RecordEvent
}

func (f *fakeEvents) Publish(_ context.Context, e model.RecordEvent) error {
	f.published = append(f.published, e)
	return nil
}

func (f *fakeEvents) ListByUser(_ context.Context, email string, _ int) ([]model.RecordEvent, error) {
	var out []model.RecordEvent
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].UserEmail == email {
			out = append(out, f.published[i])
		}
	}
	return out, nil
}

type testEnv struct {
	engine  *gin.Engine
	redis   *miniredis.Miniredis
	auth    *appsvc.AuthService
	records *fakeRecords
	files   *fakeFiles
	events  *fakeEvents
	cookie  handler.SessionCookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		redis:   mr,
		records: &fakeRecords{byUser: map[string][]model.Record{}},
		files:   &fakeFiles{objects: map[string][]byte{}},
		events:  &fakeEvents{},
		cookie:  handler.SessionCookie{Name: "mcb_session", Secret: testSecret, TTL: time.Hour},
	}
	env.auth = appsvc.NewAuthService(&fakeUsers{byEmail: map[string]*model.User{}})
	tracker := appsvc.NewTrackerService(env.records, env.files, env.events, time.Hour)
	sessions := cache.NewSessionCache(client, time.Hour)

	engine, err := NewEngine(Handlers{
		Auth:     handler.NewAuthHandler(env.auth, tracker, sessions, env.cookie),
		Tracker:  handler.NewTrackerHandler(tracker, sessions),
		Activity: handler.NewActivityHandler(env.events),
		Health: handler.NewHealthHandler("mycareerbox", "test", time.Now(), map[string]handler.HealthCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}),
	}, sessions, env.cookie)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env.engine = engine
	return env
}

func (e *testEnv) do(req *nethttp.Request, cookie *nethttp.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string, cookie *nethttp.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(nethttp.MethodGet, path, nil), cookie)
}

func (e *testEnv) postForm(path string, form url.Values, cookie *nethttp.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(nethttp.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookie)
}

func (e *testEnv) signIn(t *testing.T, email string) *nethttp.Cookie {
	t.Helper()
	if err := e.auth.SignUp(context.Background(), email, "secret123"); err != nil && !errors.Is(err, appsvc.ErrAccountExists) {
		t.Fatalf("SignUp: %v", err)
	}
	rec := e.postForm("/login", url.Values{"email": {email}, "password": {"secret123"}}, nil)
	if rec.Code != nethttp.StatusSeeOther {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == e.cookie.Name && c.Value != "" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func mustDate(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTrackerRequiresSignIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/tracker?email=me@example.com", nil)
	if rec.Code != nethttp.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d -> %q, want redirect to /login", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.get("/api/v1/activity", nil)
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("activity status = %d, want 401", rec.Code)
	}
	var body response.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != response.CodeUnauthorized {
		t.Fatalf("activity body = %s", rec.Body.String())
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	_ = env.auth.SignUp(context.Background(), "me@example.com", "secret123")

	rec := env.postForm("/login", url.Values{"email": {"me@example.com"}, "password": {"wrong"}}, nil)
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Fatalf("body missing credential message: %s", rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("failed login set a cookie")
	}
}

func TestSignUpThenLoginRestoresRecords(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm("/signup", url.Values{"email": {"Me@Example.com"}, "password": {"secret123"}}, nil)
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), "Account created") {
		t.Fatalf("signup = %d %s", rec.Code, rec.Body.String())
	}
	rec = env.postForm("/signup", url.Values{"email": {"me@example.com"}, "password": {"secret123"}}, nil)
	if !strings.Contains(rec.Body.String(), "Could not create account") {
		t.Fatalf("duplicate signup body = %s", rec.Body.String())
	}

	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "A", Company: "Acme Corp", Position: "SWE", Status: model.StatusOffer, Date: mustDate("2024-02-01"), ResumeFilename: "cv.pdf"},
	}

	login := env.postForm("/login", url.Values{"email": {"me@example.com"}, "password": {"secret123"}}, nil)
	if got := login.Header().Get("Location"); got != "/tracker?email=me%40example.com" {
		t.Fatalf("login redirect = %q", got)
	}
	cookie := login.Result().Cookies()[0]

	page := env.get("/tracker?email=me%40example.com", cookie)
	if page.Code != nethttp.StatusOK {
		t.Fatalf("tracker status = %d", page.Code)
	}
	body := page.Body.String()
	for _, want := range []string{"Acme Corp", "https://files.test/me@example.com/cv.pdf", "me@example.com"} {
		if !strings.Contains(body, want) {
			t.Fatalf("tracker page missing %q", want)
		}
	}
	if env.records.listCalls != 1 {
		t.Fatalf("list calls = %d, want 1 (cached after sign-in)", env.records.listCalls)
	}
}

func TestEmailParameterMustMatchSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "me@example.com")

	rec := env.get("/tracker?email=someone%40else.com&q=acme", cookie)
	if rec.Code != nethttp.StatusSeeOther {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/tracker?email=me%40example.com&q=acme" {
		t.Fatalf("redirect = %q", got)
	}

	forged := &nethttp.Cookie{Name: env.cookie.Name, Value: "not-a-token"}
	rec = env.get("/tracker?email=me%40example.com", forged)
	if rec.Header().Get("Location") != "/login" {
		t.Fatalf("forged cookie redirect = %q", rec.Header().Get("Location"))
	}
}

func TestSubmitWithResume(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "me@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("company", "Acme")
	_ = mw.WriteField("position", "Backend Engineer")
	_ = mw.WriteField("status", "Online Test")
	_ = mw.WriteField("date", "2024-05-04")
	fw, _ := mw.CreateFormFile("resume", "resume.pdf")
	_, _ = io.WriteString(fw, "%PDF-1.4 first")
	_ = mw.Close()

	req := httptest.NewRequest(nethttp.MethodPost, "/tracker/records", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req, cookie)
	if rec.Code != nethttp.StatusSeeOther {
		t.Fatalf("submit status = %d", rec.Code)
	}

	if string(env.files.objects["me@example.com/resume.pdf"]) != "%PDF-1.4 first" {
		t.Fatalf("objects = %v", env.files.objects)
	}
	stored := env.records.byUser["me@example.com"]
	if len(stored) != 1 || stored[0].Status != model.StatusOnlineTest || stored[0].ResumeFilename != "resume.pdf" {
		t.Fatalf("stored = %+v", stored)
	}

	page := env.get(rec.Header().Get("Location"), cookie).Body.String()
	if !strings.Contains(page, "Application saved") || !strings.Contains(page, "Backend Engineer") {
		t.Fatalf("page after submit missing flash or record")
	}
	again := env.get("/tracker?email=me%40example.com", cookie).Body.String()
	if strings.Contains(again, "Application saved") {
		t.Fatal("flash shown twice")
	}
	if len(env.events.published) != 1 || env.events.published[0].EventType != model.RecordCreated {
		t.Fatalf("events = %+v", env.events.published)
	}
}

func TestSearchFiltersByCompany(t *testing.T) {
	env := newTestEnv(t)
	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "1", Company: "Acme Corp", Date: mustDate("2024-01-01")},
		{DocumentID: "2", Company: "ACME INC", Date: mustDate("2024-01-02")},
		{DocumentID: "3", Company: "Other Co", Date: mustDate("2024-01-03")},
	}
	cookie := env.signIn(t, "me@example.com")

	body := env.get("/tracker?email=me%40example.com&q=acme", cookie).Body.String()
	if !strings.Contains(body, "Acme Corp") || !strings.Contains(body, "ACME INC") {
		t.Fatal("matching companies missing")
	}
	if strings.Contains(body, "Other Co") {
		t.Fatal("non-matching company shown")
	}
	if env.records.listCalls != 1 {
		t.Fatalf("search hit the repository: %d list calls", env.records.listCalls)
	}
}

func TestStatusUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "R1", Company: "Acme", Status: model.StatusToApply, Date: mustDate("2024-01-01")},
	}
	cookie := env.signIn(t, "me@example.com")

	rec := env.postForm("/tracker/records/R1/status", url.Values{"status": {"To Apply"}}, cookie)
	if rec.Code != nethttp.StatusSeeOther || env.records.updateCalls != 0 {
		t.Fatalf("same status: code %d, %d update calls", rec.Code, env.records.updateCalls)
	}

	env.postForm("/tracker/records/R1/status", url.Values{"status": {"1st Interview"}}, cookie)
	if env.records.updateCalls != 1 || env.records.byUser["me@example.com"][0].Status != model.StatusFirstInterview {
		t.Fatalf("update not written: %+v", env.records.byUser["me@example.com"])
	}
	page := env.get("/tracker?email=me%40example.com", cookie).Body.String()
	if !strings.Contains(page, `value="1st Interview" selected`) {
		t.Fatal("updated status not selected in view")
	}

	env.postForm("/tracker/records/R1/status", url.Values{"status": {"Hired"}}, cookie)
	if env.records.updateCalls != 1 {
		t.Fatal("unknown status reached the repository")
	}
}

func TestDeleteRecord(t *testing.T) {
	env := newTestEnv(t)
	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "R1", Company: "Keep Ltd", Date: mustDate("2024-01-01")},
		{DocumentID: "R2", Company: "Drop Ltd", Date: mustDate("2024-01-02")},
	}
	cookie := env.signIn(t, "me@example.com")

	env.postForm("/tracker/records/R2/delete", url.Values{}, cookie)
	if len(env.records.byUser["me@example.com"]) != 2 {
		t.Fatal("delete without confirmation removed a record")
	}

	env.records.failDelete = true
	env.postForm("/tracker/records/R2/delete", url.Values{"confirm": {"yes"}}, cookie)
	page := env.get("/tracker?email=me%40example.com", cookie).Body.String()
	if !strings.Contains(page, "Drop Ltd") || !strings.Contains(page, "Could not delete the application") {
		t.Fatal("failed delete should keep the record and show an error")
	}

	env.records.failDelete = false
	env.postForm("/tracker/records/R2/delete", url.Values{"confirm": {"yes"}}, cookie)
	page = env.get("/tracker?email=me%40example.com", cookie).Body.String()
	if strings.Contains(page, "Drop Ltd") || !strings.Contains(page, "Keep Ltd") {
		t.Fatal("delete did not remove exactly the chosen record")
	}
}

func TestExportRendersDownloadLink(t *testing.T) {
	env := newTestEnv(t)
	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "R1", Company: "Acme", Date: mustDate("2024-01-01"), ResumeFilename: model.NoResume},
	}
	cookie := env.signIn(t, "me@example.com")
	calls := env.records.listCalls

	rec := env.postForm("/tracker/export", url.Values{}, cookie)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `href="data:application/vnd.openxmlformats-officedocument.spreadsheetml.sheet;base64,`) {
		t.Fatal("export link missing")
	}
	if !strings.Contains(body, `download="applications.xlsx"`) {
		t.Fatal("download filename missing")
	}
	if env.records.listCalls != calls {
		t.Fatal("export read from the repository")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "me@example.com")
	if len(env.redis.Keys()) != 1 {
		t.Fatalf("redis keys = %v", env.redis.Keys())
	}

	rec := env.postForm("/logout", url.Values{}, cookie)
	if rec.Code != nethttp.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("logout = %d -> %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(env.redis.Keys()) != 0 {
		t.Fatalf("session still stored: %v", env.redis.Keys())
	}

	rec = env.get("/tracker?email=me%40example.com", cookie)
	if rec.Header().Get("Location") != "/login" {
		t.Fatal("old cookie still restores the session")
	}
}

func TestActivityListsOwnEvents(t *testing.T) {
	env := newTestEnv(t)
	env.events.published = []model.RecordEvent{
		{UserEmail: "other@example.com", EventType: model.RecordCreated, Company: "Hidden"},
		{UserEmail: "me@example.com", EventType: model.RecordDeleted, Company: "Acme"},
	}
	cookie := env.signIn(t, "me@example.com")

	rec := env.get("/api/v1/activity", cookie)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Code int `json:"code"`
		Data struct {
			Events []model.RecordEvent `json:"events"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Events) != 1 || body.Data.Events[0].Company != "Acme" {
		t.Fatalf("events = %+v", body.Data.Events)
	}

	if rec := env.get("/api/v1/activity?limit=abc", cookie); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.get("/healthz", nil); rec.Code != nethttp.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	env.redis.Close()
	if rec := env.get("/healthz", nil); rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("healthz with redis down = %d", rec.Code)
	}
}

func TestSignUpRejectsMalformedEmail(t *testing.T) {
	env := newTestEnv(t)

	for _, email := range []string{"Bob <bob@example.com>", "bob@localhost", ""} {
		rec := env.postForm("/signup", url.Values{"email": {email}, "password": {"secret123"}}, nil)
		if rec.Code != nethttp.StatusBadRequest {
			t.Fatalf("signup %q status = %d, want 400", email, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Could not create account") {
			t.Fatalf("signup %q missing generic failure message", email)
		}
	}

	rec := env.postForm("/signup", url.Values{"email": {"me@example.com"}, "password": {"123"}}, nil)
	if rec.Code != nethttp.StatusBadRequest || !strings.Contains(rec.Body.String(), "Could not create account") {
		t.Fatalf("short password = %d %s", rec.Code, rec.Body.String())
	}

	if _, err := env.auth.SignIn(context.Background(), "Bob <bob@example.com>", "secret123"); !errors.Is(err, appsvc.ErrInvalidCredential) {
		t.Fatalf("malformed address was registered: %v", err)
	}
}

func TestLoginWithMissingFieldsIsRejected(t *testing.T) {
	env := newTestEnv(t)
	_ = env.auth.SignUp(context.Background(), "me@example.com", "secret123")

	rec := env.postForm("/login", url.Values{"email": {"me@example.com"}}, nil)
	if rec.Code != nethttp.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Fatalf("login without password = %d", rec.Code)
	}
}

func TestSubmitWithUnusableResumeIsReported(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "me@example.com")

	for _, tc := range []struct{ filename, content string }{
		{"None", "%PDF-1.4"},
		{"empty.pdf", ""},
	} {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("company", "Acme")
		fw, _ := mw.CreateFormFile("resume", tc.filename)
		_, _ = io.WriteString(fw, tc.content)
		_ = mw.Close()

		req := httptest.NewRequest(nethttp.MethodPost, "/tracker/records", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := env.do(req, cookie)

		page := env.get(rec.Header().Get("Location"), cookie).Body.String()
		if strings.Contains(page, "Application saved") || !strings.Contains(page, "The resume was not stored") {
			t.Fatalf("resume %q: unusable file not reported", tc.filename)
		}
	}
	if len(env.records.byUser["me@example.com"]) != 0 || len(env.files.objects) != 0 {
		t.Fatal("record or object written for an unusable resume")
	}
}

var exportLink = regexp.MustCompile(`href="(data:[^"]+)"`)

func TestExportLoadsRecordsFirst(t *testing.T) {
	env := newTestEnv(t)
	env.records.failList = true
	cookie := env.signIn(t, "me@example.com")

	env.records.failList = false
	env.records.byUser["me@example.com"] = []model.Record{
		{DocumentID: "R1", Company: "Acme", Date: mustDate("2024-01-01"), ResumeFilename: model.NoResume},
	}

	rec := env.postForm("/tracker/export", url.Values{}, cookie)
	m := exportLink.FindStringSubmatch(rec.Body.String())
	if m == nil {
		t.Fatal("export link missing")
	}
	uri := html.UnescapeString(m[1])
	encoded := uri[strings.Index(uri, ",")+1:]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(appsvc.ExportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "Acme" {
		t.Fatalf("rows = %v, want header + Acme", rows)
	}
}
