package handlers

import (
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/utils"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if len(req.Username) < 3 {
		return utils.Error(c, fiber.StatusBadRequest, "username must be at least 3 characters")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 6 characters")
	}

	var existing models.User
	if err := h.DB.First(&existing, "username = ? OR email = ?", req.Username, req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "username or email already exists")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token, "user": user})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login accepts a username or an email in the username field.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	identifier := strings.TrimSpace(req.Username)

	if identifier == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "username = ? OR email = ?", identifier, strings.ToLower(identifier)).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"identifier": identifier,
			"ip":         c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	logger.Info("user_login", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"ip":       c.IP(),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return utils.Error(c, fiber.StatusBadRequest, "all password fields are required")
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.Error(c, fiber.StatusBadRequest, "new passwords do not match")
	}
	if len(req.NewPassword) < 6 {
		return utils.Error(c, fiber.StatusBadRequest, "new password must be at least 6 characters")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading user")
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "current password is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	logger.InfoWithUser(user.ID.String(), "user_password_changed", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
