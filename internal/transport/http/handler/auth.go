package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mycareerbox/internal/app"
	"mycareerbox/internal/model"
	"mycareerbox/internal/pkg/jwtutil"
	"mycareerbox/internal/transport/http/middleware"
	"mycareerbox/internal/transport/http/view"
)

const (
	msgInvalidCredential = "Invalid email or password"
	msgSignUpFailed      = "Could not create account"
	msgSignUpInvalid     = msgSignUpFailed + ". Use a valid email and a password of at least 6 characters."
	msgSignUpDone        = "Account created. You can sign in now."
	msgSignInUnavailable = "Sign-in is temporarily unavailable, please try again"
)

// SessionCookie describes the signed cookie that carries the session id.
type SessionCookie struct {
	Name   string
	Secret string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	authService *app.AuthService
	tracker     *app.TrackerService
	sessions    middleware.SessionStore
	cookie      SessionCookie
}

type loginForm struct {
	Email    string `form:"email" binding:"required,max=128"`
	Password string `form:"password" binding:"required,max=128"`
}

type signUpForm struct {
	Email    string `form:"email" binding:"required,email,max=128"`
	Password string `form:"password" binding:"required,min=6,max=128"`
}

type loginPage struct {
	Email string
	Flash *model.Flash
}

func NewAuthHandler(
	authService *app.AuthService,
	tracker *app.TrackerService,
	sessions middleware.SessionStore,
	cookie SessionCookie,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tracker:     tracker,
		sessions:    sessions,
		cookie:      cookie,
	}
}

// Home sends the browser to whichever view matches its session.
func (h *AuthHandler) Home(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess.Authenticated {
		c.Redirect(http.StatusSeeOther, trackerURL(sess.UserEmail, ""))
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess.Authenticated {
		c.Redirect(http.StatusSeeOther, trackerURL(sess.UserEmail, ""))
		return
	}
	c.HTML(http.StatusOK, view.LoginPage, loginPage{})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		h.renderLogin(c, http.StatusUnauthorized, form.Email, model.FlashError, msgInvalidCredential)
		return
	}

	user, err := h.authService.SignIn(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, app.ErrInvalidCredential) {
			log.Printf("sign in failed: %v", err)
		}
		h.renderLogin(c, http.StatusUnauthorized, form.Email, model.FlashError, msgInvalidCredential)
		return
	}

	ctx := c.Request.Context()
	if previous := middleware.CurrentSession(c); previous.ID != "" {
		if err := h.sessions.Delete(ctx, previous.ID); err != nil {
			log.Printf("drop previous session failed: %v", err)
		}
	}

	sess := model.NewSession(uuid.NewString())
	sess.SignIn(user.Email)
	if err := h.tracker.Reload(ctx, sess); err != nil {
		log.Printf("load records for %s failed: %v", user.Email, err)
		sess.SetFlash(model.FlashError, msgLoadFailed)
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		log.Printf("save session failed: %v", err)
		h.renderLogin(c, http.StatusServiceUnavailable, form.Email, model.FlashError, msgSignInUnavailable)
		return
	}

	token, err := jwtutil.GenerateToken(h.cookie.Secret, h.cookie.TTL, sess.ID, sess.UserEmail)
	if err != nil {
		log.Printf("issue session token failed: %v", err)
		h.renderLogin(c, http.StatusServiceUnavailable, form.Email, model.FlashError, msgSignInUnavailable)
		return
	}

	h.setCookie(c, token, int(h.cookie.TTL.Seconds()))
	c.Redirect(http.StatusSeeOther, trackerURL(sess.UserEmail, ""))
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var form signUpForm
	if err := c.ShouldBind(&form); err != nil {
		h.renderLogin(c, http.StatusBadRequest, "", model.FlashError, msgSignUpInvalid)
		return
	}

	err := h.authService.SignUp(c.Request.Context(), form.Email, form.Password)
	switch {
	case err == nil:
		h.renderLogin(c, http.StatusOK, app.NormalizeEmail(form.Email), model.FlashSuccess, msgSignUpDone)
	case errors.Is(err, app.ErrInvalidInput):
		h.renderLogin(c, http.StatusBadRequest, "", model.FlashError, msgSignUpInvalid)
	case errors.Is(err, app.ErrAccountExists):
		h.renderLogin(c, http.StatusConflict, "", model.FlashError, msgSignUpFailed)
	default:
		log.Printf("sign up failed: %v", err)
		h.renderLogin(c, http.StatusInternalServerError, "", model.FlashError, msgSignUpFailed)
	}
}

// Logout forgets the session server-side and drops the cookie. The redirect
// target carries no email parameter.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess.ID != "" {
		if err := h.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
			log.Printf("delete session failed: %v", err)
		}
	}
	sess.Clear()

	h.setCookie(c, "", -1)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *AuthHandler) renderLogin(c *gin.Context, status int, email string, kind model.FlashKind, message string) {
	c.HTML(status, view.LoginPage, loginPage{
		Email: email,
		Flash: &model.Flash{Kind: kind, Message: message},
	})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}
