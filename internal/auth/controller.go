package auth

import (
	"errors"
	"net/http"

	"boxoffice/internal/shared/middleware"
	"boxoffice/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{
		service:   service,
		validator: validator.New(),
	}
}

// bind decodes and validates the body, writing the 400 itself.
func (c *Controller) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}
	if err := c.validator.Struct(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return false
	}
	return true
}

// Register godoc
// @Summary Register an organizer account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Organizer details"
// @Success 201 {object} response.StandardApiResponse{data=AuthResponse}
// @Failure 409 {object} response.StandardApiResponse
// @Router /auth/register [post]
func (c *Controller) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !c.bind(ctx, &req) {
		return
	}

	resp, err := c.service.Register(ctx.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			response.RespondJSON(ctx, "error", http.StatusConflict, "User with this email already exists", nil, nil)
			return
		}
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to register user", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "User registered successfully", resp, nil)
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} response.StandardApiResponse{data=AuthResponse}
// @Failure 401 {object} response.StandardApiResponse
// @Failure 403 {object} response.StandardApiResponse
// @Router /auth/login [post]
func (c *Controller) Login(ctx *gin.Context) {
	var req LoginRequest
	if !c.bind(ctx, &req) {
		return
	}

	resp, err := c.service.Login(ctx.Request.Context(), &req, ctx.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Invalid email or password", nil, nil)
		case errors.Is(err, ErrAccountSuspended):
			response.RespondJSON(ctx, "error", http.StatusForbidden, "Account suspended", nil, nil)
		default:
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to login", nil, nil)
		}
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Login successful", resp, nil)
}

// RefreshToken godoc
// @Summary Exchange a refresh token for a new pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "Refresh token"
// @Success 200 {object} response.StandardApiResponse{data=TokenPair}
// @Failure 401 {object} response.StandardApiResponse
// @Router /auth/refresh [post]
func (c *Controller) RefreshToken(ctx *gin.Context) {
	var req RefreshTokenRequest
	if !c.bind(ctx, &req) {
		return
	}

	tokenPair, err := c.service.RefreshToken(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
			response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Invalid or expired refresh token", nil, nil)
		case errors.Is(err, ErrAccountSuspended):
			response.RespondJSON(ctx, "error", http.StatusForbidden, "Account suspended", nil, nil)
		default:
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to refresh token", nil, nil)
		}
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Token refreshed successfully", tokenPair, nil)
}

func (c *Controller) ChangePassword(ctx *gin.Context) {
	userID := ctx.GetString(middleware.ContextUserID)
	if userID == "" {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	var req ChangePasswordRequest
	if !c.bind(ctx, &req) {
		return
	}

	err := c.service.ChangePassword(ctx.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.RespondJSON(ctx, "error", http.StatusUnauthorized, "Current password is incorrect", nil, nil)
		case errors.Is(err, ErrUserNotFound):
			response.RespondJSON(ctx, "error", http.StatusNotFound, "User not found", nil, nil)
		default:
			response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to change password", nil, nil)
		}
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Password changed successfully", nil, nil)
}

// GetMe godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.StandardApiResponse{data=UserResponse}
// @Router /auth/me [get]
func (c *Controller) GetMe(ctx *gin.Context) {
	userID := ctx.GetString(middleware.ContextUserID)
	if userID == "" {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	user, err := c.service.GetMe(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.RespondJSON(ctx, "error", http.StatusNotFound, "User not found", nil, nil)
			return
		}
		response.RespondJSON(ctx, "error", http.StatusInternalServerError, "Failed to load user", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "User data retrieved successfully", user, nil)
}
