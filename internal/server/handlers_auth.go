package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/identity"
	"github.com/easyfix/easyfix-go/internal/models"
)

// handleRegister creates an account. Anyone may register; assigning a role
// at registration requires an admin bearer token.
func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	var roles []string
	if req.Role != "" {
		token, err := bearerToken(c)
		if err != nil {
			renderError(c, apperrors.Authentication("role assignment requires authentication"))
			return
		}
		caller, _, err := s.gateway.VerifyToken(c.Request.Context(), token)
		if err != nil {
			renderError(c, err)
			return
		}
		if !caller.HasRole("admin") {
			renderError(c, apperrors.Authorization("only admin can assign roles"))
			return
		}
		roles = []string{req.Role}
	}

	resp, err := s.gateway.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName, roles)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	resp, err := s.gateway.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMe(c *gin.Context) {
	info := authInfo(c)
	if info == nil {
		renderError(c, apperrors.Authentication("not authenticated"))
		return
	}
	if len(info.Roles) == 0 {
		info.Roles = []string{identity.DefaultRole}
	}
	c.JSON(http.StatusOK, info)
}

// handleVerifyToken checks a token and reports validity. An invalid or
// expired token is a negative answer, not an error response.
func (s *Server) handleVerifyToken(c *gin.Context) {
	var req models.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	info, claims, err := s.gateway.VerifyToken(c.Request.Context(), req.IDToken)
	if err != nil {
		if apperrors.GetKind(err) == apperrors.KindAuthentication {
			c.JSON(http.StatusOK, models.VerifyTokenResponse{Valid: false})
			return
		}
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.VerifyTokenResponse{
		Valid:  true,
		UID:    info.UID,
		Claims: claims,
	})
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}
	if req.DisplayName == nil && req.PhotoURL == nil {
		c.JSON(http.StatusOK, models.StatusResponse{OK: true})
		return
	}

	// requireAuth already validated this token.
	token, err := bearerToken(c)
	if err != nil {
		renderError(c, err)
		return
	}

	resp, err := s.gateway.UpdateProfile(c.Request.Context(), token, req.DisplayName, req.PhotoURL)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	if err := s.gateway.ChangePassword(c.Request.Context(), req.IDToken, req.NewPassword); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{OK: true})
}

func (s *Server) handleSendPasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}

	if err := s.gateway.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{OK: true})
}

// handleSetRoles replaces a user's role claims. Admin only; the target's
// clients pick up the new roles on their next token refresh.
func (s *Server) handleSetRoles(c *gin.Context) {
	uid := c.Param("uid")
	if uid == "" {
		renderError(c, apperrors.Validation("uid is required"))
		return
	}

	var req models.SetRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderBindingError(c, err)
		return
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{identity.DefaultRole}
	}

	if err := s.gateway.SetRoles(c.Request.Context(), uid, roles); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SetRolesResponse{
		OK:    true,
		UID:   uid,
		Roles: roles,
		Note:  "client must refresh its ID token to see the new roles",
	})
}
