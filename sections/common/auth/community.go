package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"commune-backend/sections/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var ErrInvalidCommunityID = errors.New("invalid community ID format")

// MemberLookup finds a user's membership in a community. It returns an error for
// non-members.
type MemberLookup interface {
	GetMember(ctx context.Context, communityID, userID string) (*models.CommunityMember, error)
}

// RequireCommunityAdmin only lets active admins of the :communityId path parameter through.
// It must run after JWTAuthMiddleware.
func RequireCommunityAdmin(members MemberLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		communityID := c.Param("communityId")
		if err := validateCommunityID(communityID); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID, ok := GetUserIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		member, err := members.GetMember(c.Request.Context(), communityID, userID)
		if err != nil || !member.IsActiveAdmin() {
			slog.Warn("Community admin check failed", "community_id", communityID, "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "community admin access required"})
			return
		}

		c.Set("communityId", communityID)
		c.Next()
	}
}

// GetCommunityIDFromContext retrieves the community ID set by RequireCommunityAdmin
func GetCommunityIDFromContext(c *gin.Context) (string, bool) {
	communityID, exists := c.Get("communityId")
	if !exists {
		return "", false
	}
	id, ok := communityID.(string)
	return id, ok
}

func validateCommunityID(communityID string) error {
	if _, err := uuid.Parse(communityID); err != nil {
		return ErrInvalidCommunityID
	}
	return nil
}
