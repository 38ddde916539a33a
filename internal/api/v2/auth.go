package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swarahealth/coughwatch-go/internal/security"
)

func (c *Controller) initAuthRoutes() {
	c.Group.POST("/auth/register", c.Register)
	c.Group.POST("/auth/login", c.Login)
	c.Group.POST("/auth/logout", c.Logout)
	c.Group.GET("/auth/me", c.Me, c.requireSession)
}

// userJSON is the account shape returned by the auth endpoints. The
// password hash never leaves the datastore layer, this keeps the contract
// explicit.
type userJSON struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Register creates an account and signs the new user in.
func (c *Controller) Register(ctx echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	user, err := c.Auth.Register(ctx.Request().Context(), security.RegisterParams{
		Email:    body.Email,
		Username: body.Username,
		Name:     body.Name,
		Password: body.Password,
	})
	if err != nil {
		return c.HandleDomainError(ctx, err, "Registration failed")
	}

	if err := c.Sessions.SignIn(ctx, user.ID); err != nil {
		return c.HandleError(ctx, err, "Failed to establish session", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusCreated, userJSON{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
}

// Login verifies credentials and establishes a session.
func (c *Controller) Login(ctx echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	user, err := c.Auth.Login(ctx.Request().Context(), body.Email, body.Password)
	if err != nil {
		return c.HandleDomainError(ctx, err, "Login failed")
	}

	if err := c.Sessions.SignIn(ctx, user.ID); err != nil {
		return c.HandleError(ctx, err, "Failed to establish session", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, userJSON{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
}

// Logout expires the session cookie. It succeeds whether or not a session
// existed.
func (c *Controller) Logout(ctx echo.Context) error {
	if err := c.Sessions.SignOut(ctx); err != nil {
		return c.HandleError(ctx, err, "Failed to end session", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"loggedOut": true})
}

// Me returns the signed-in account.
func (c *Controller) Me(ctx echo.Context) error {
	user := sessionUser(ctx)
	return ctx.JSON(http.StatusOK, userJSON{
		ID:       user.ID,
		Email:    user.Email,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
}
