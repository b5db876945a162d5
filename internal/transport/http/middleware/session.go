package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"mycareerbox/internal/model"
	"mycareerbox/internal/pkg/jwtutil"
	"mycareerbox/internal/transport/http/response"
)

const ContextSessionKey = "session"

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.Session, bool, error)
	Save(ctx context.Context, sess *model.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// LoadSession resolves the signed session cookie into the stored Session.
// Requests without a valid cookie get an empty, signed-out Session that is
// never persisted.
func LoadSession(store SessionStore, secret, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextSessionKey, restoreSession(c, store, secret, cookieName))
		c.Next()
	}
}

func restoreSession(c *gin.Context, store SessionStore, secret, cookieName string) *model.Session {
	raw, err := c.Cookie(cookieName)
	if err != nil || raw == "" {
		return model.NewSession("")
	}

	claims, err := jwtutil.ParseToken(secret, raw)
	if err != nil {
		return model.NewSession("")
	}

	sess, ok, err := store.Get(c.Request.Context(), claims.SessionID)
	if err != nil {
		log.Printf("load session failed: %v", err)
		return model.NewSession("")
	}
	if !ok || !sess.Authenticated || sess.UserEmail != claims.Email {
		return model.NewSession("")
	}
	return sess
}

// CurrentSession returns the Session attached by LoadSession.
func CurrentSession(c *gin.Context) *model.Session {
	if v, ok := c.Get(ContextSessionKey); ok {
		if sess, ok := v.(*model.Session); ok {
			return sess
		}
	}
	return model.NewSession("")
}

// RequireSignIn sends signed-out browsers to the login page.
func RequireSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).Authenticated {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func RequireSignInAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).Authenticated {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "sign in required")
			c.Abort()
			return
		}
		c.Next()
	}
}
