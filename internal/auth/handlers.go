package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	apperrors "github.com/PYPE-AI-MAIN/whispey-sub003/internal/errors"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/middleware"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
	"github.com/PYPE-AI-MAIN/whispey-sub003/pkg/utils"
)

// HandleLogin handles user login
func HandleLogin(c *gin.Context) {
	email := utils.GetValidatedString(c, "validated_email")
	password := utils.GetValidatedString(c, "validated_password")

	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	var user models.User
	if err := database.DB.Where("email = ? AND active = ?", email, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondInvalidCredentials(c)
			return
		}
		utils.SendErrorResponse(c, http.StatusInternalServerError, &apperrors.AppError{
			Code:    "DATABASE_ERROR",
			Message: "Database error occurred",
			Details: "Failed to query user",
			Err:     err,
		})
		return
	}

	if IsAccountLocked(&user) {
		utils.SendErrorResponse(c, http.StatusLocked, &apperrors.AppError{
			Code:    apperrors.ErrAccountLocked.Code,
			Message: apperrors.ErrAccountLocked.Message,
			Details: fmt.Sprintf("Account locked until %s", user.LockedUntil.Format(time.RFC3339)),
		})
		return
	}

	if !CheckPassword(password, user.Password) {
		if err := RecordFailedLogin(database.DB, &user); err != nil {
			utils.HandleError(err, fmt.Sprintf("Failed to record failed login for user %s", user.Email))
		}
		middleware.RecordFailedLoginAttempt(c)

		if IsAccountLocked(&user) {
			utils.SendErrorResponse(c, http.StatusLocked, &apperrors.AppError{
				Code:    apperrors.ErrAccountLocked.Code,
				Message: apperrors.ErrAccountLocked.Message,
				Details: fmt.Sprintf("Account locked until %s", user.LockedUntil.Format(time.RFC3339)),
			})
		} else {
			respondInvalidCredentials(c)
		}
		return
	}

	if err := RecordSuccessfulLogin(database.DB, &user); err != nil {
		utils.HandleError(err, fmt.Sprintf("Failed to reset login attempts for user %s", user.Email))
	}
	middleware.RecordSuccessfulLoginAttempt(c)

	token, expiry, csrfToken, err := GenerateToken(user)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError, &apperrors.AppError{
			Code:    "TOKEN_GENERATION_FAILED",
			Message: "Failed to generate authentication token",
			Err:     err,
		})
		return
	}

	SetAuthCookie(c, token, expiry, csrfToken)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiry,
		"csrf_token": csrfToken,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// HandleLogout revokes the current token and clears cookies
func HandleLogout(c *gin.Context) {
	tokenString := extractToken(c)
	if tokenString != "" {
		if claims, err := ParseToken(tokenString); err == nil {
			BlacklistToken(database.DB, tokenString, claims.UserID, claims.ExpiresAt.Time)
		}
	}

	ClearAuthCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// HandleMe returns the authenticated user and their project memberships
func HandleMe(c *gin.Context) {
	value, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	user, ok := value.(models.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user context"})
		return
	}

	var memberships []models.ProjectMember
	if err := database.DB.Where("email = ?", user.Email).Find(&memberships).Error; err != nil {
		utils.HandleError(err, "Failed to load project memberships")
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"memberships": memberships,
	})
}

// HandleCSRFToken issues a fresh CSRF token for cookie-authenticated clients
func HandleCSRFToken(c *gin.Context) {
	csrfToken, err := generateCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate CSRF token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: false,
		Secure:   shouldUseSecureCookies(c),
		SameSite: http.SameSiteLaxMode,
	})

	c.JSON(http.StatusOK, gin.H{"csrf_token": csrfToken})
}

func respondInvalidCredentials(c *gin.Context) {
	utils.SendErrorResponse(c, http.StatusUnauthorized, &apperrors.AppError{
		Code:    apperrors.ErrInvalidCredentials.Code,
		Message: apperrors.ErrInvalidCredentials.Message,
	})
}
