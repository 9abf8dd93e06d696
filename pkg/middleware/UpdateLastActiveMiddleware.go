package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ActivityToucher records when a user was last seen.
type ActivityToucher interface {
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// UpdateLastActiveMiddleware stamps the caller's last activity time.
// Must run after AuthMiddleware.
func UpdateLastActiveMiddleware(users ActivityToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := GetUserFromContext(r.Context()); claims != nil {
				if err := users.TouchLastActive(r.Context(), claims.UserID, time.Now()); err != nil {
					logrus.WithError(err).WithField("userID", claims.UserID).Warn("Failed to update last active")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
