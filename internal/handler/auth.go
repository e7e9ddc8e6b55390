package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/orehub/metalx/internal/model"
	"github.com/orehub/metalx/internal/repository"
	"github.com/orehub/metalx/internal/utils"
)

// AuthHandler implements registration, login and the identity endpoint.
type AuthHandler struct {
	Users        *repository.UserRepo
	JWTSecret    string
	AccessTTLMin int
	BcryptCost   int
}

func NewAuthHandler(users *repository.UserRepo, jwtSecret string, accessTTLMin, bcryptCost int) *AuthHandler {
	if users == nil {
		panic("nil user repository passed to NewAuthHandler")
	}
	return &AuthHandler{Users: users, JWTSecret: jwtSecret, AccessTTLMin: accessTTLMin, BcryptCost: bcryptCost}
}

// Register handles POST /v1/auth/register.  Companies sign up as either
// a BUYER or a SUPPLIER; the role gates which auction operations they
// may call later.
func (h *AuthHandler) Register(c echo.Context) error {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		CompanyName string `json:"company_name"`
		Role        string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	role := strings.ToUpper(strings.TrimSpace(body.Role))
	if email == "" || !strings.Contains(email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email is required"})
	}
	if len(body.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if strings.TrimSpace(body.CompanyName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_name is required"})
	}
	if role != model.RoleBuyer && role != model.RoleSupplier {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be BUYER or SUPPLIER"})
	}

	hash, err := utils.HashPassword(body.Password, h.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not hash password"})
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		CompanyName:  strings.TrimSpace(body.CompanyName),
		Role:         role,
		IsActive:     true,
	}
	if err := h.Users.Create(c.Request().Context(), u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create user"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":           u.ID,
		"email":        u.Email,
		"company_name": u.CompanyName,
		"role":         u.Role,
	})
}

// Login handles POST /v1/auth/login and returns a signed access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	u, err := h.Users.GetByEmail(c.Request().Context(), email)
	if err != nil || !u.IsActive || !utils.VerifyPassword(u.PasswordHash, body.Password) {
		// One message for every failure mode keeps credential probing blind.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	token, err := utils.NewAccessToken(h.JWTSecret, u.ID, u.Role, h.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token.Token,
		"expires_at":   token.Exp,
		"role":         u.Role,
	})
}

// Me handles GET /v1/me for the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	u, err := h.Users.GetByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":           u.ID,
		"email":        u.Email,
		"company_name": u.CompanyName,
		"role":         u.Role,
	})
}
