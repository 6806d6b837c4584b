package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"library/internal/auth"
	"library/internal/config"
	"library/internal/handler"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Auth         *handler.AuthHandler
	Book         *handler.BookHandler
	Borrowing    *handler.BorrowingHandler
	Admin        *handler.AdminHandler
	Notification *handler.NotificationHandler
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	h Handlers,
	jwtService *auth.JWTService,
	tokenStore auth.TokenStoreInterface,
) {
	e.Validator = &CustomValidator{validator: validator.New()}
	RegisterMiddlewares(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Public routes
	public := api.Group("/auth", AuthRateLimiter())
	public.POST("/register", h.Auth.Register)
	public.POST("/login", h.Auth.Login)
	public.POST("/refresh", h.Auth.Refresh)
	public.POST("/forgot-password", h.Auth.ForgotPassword)
	public.POST("/reset-password", h.Auth.ResetPassword)

	api.GET("/books", h.Book.List)
	api.GET("/books/:id", h.Book.Get)

	// Called by the external scheduler, authenticated by the cron secret instead of a user token.
	api.GET("/admin/borrowings/sweep", h.Borrowing.Sweep, CronAuth(cfg.CronSecret))

	// Secured routes (require JWT authentication)
	secured := api.Group("", echojwt.WithConfig(echojwt.Config{
		ParseTokenFunc: parseAccessToken(jwtService, tokenStore),
		ErrorHandler:   unauthorized,
	}))

	secured.GET("/me", h.Auth.Me)
	secured.POST("/auth/logout", h.Auth.Logout)

	secured.POST("/borrowings", h.Borrowing.Borrow)
	secured.GET("/borrowings", h.Borrowing.ListMine)
	secured.GET("/borrowings/:id", h.Borrowing.Get)
	secured.POST("/borrowings/:id/return", h.Borrowing.Return)

	secured.GET("/notifications", h.Notification.List)
	secured.PUT("/notifications/:id/read", h.Notification.MarkRead)

	admin := secured.Group("/admin", RequireAdmin)
	admin.GET("/stats", h.Admin.Stats)
	admin.GET("/users", h.Admin.ListUsers)
	admin.PUT("/users/:id/role", h.Admin.UpdateRole)
	admin.DELETE("/users/:id", h.Admin.DeleteUser)
	admin.POST("/test-email", h.Admin.TestEmail)

	admin.POST("/books", h.Book.Create)
	admin.PUT("/books/:id", h.Book.Update)
	admin.DELETE("/books/:id", h.Book.Delete)

	admin.GET("/borrowings", h.Borrowing.ListAll)
	admin.POST("/borrowings/:id/return", h.Borrowing.AdminReturn)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
