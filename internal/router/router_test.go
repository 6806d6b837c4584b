package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"library/internal/auth"
	"library/internal/config"
	"library/internal/errors"
	"library/internal/handler"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
	"library/internal/service"
	"library/internal/testutil"
)

const cronSecret = "cron-test-secret"

type stubSweeper struct {
	err error
}

func (s stubSweeper) Sweep(context.Context) (*service.SweepReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.SweepReport{}, nil
}

type testServer struct {
	e      *echo.Echo
	db     *gorm.DB
	jwt    *auth.JWTService
	tokens *auth.TokenStore
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T, secret string, sweeper service.SweepService) *testServer {
	t.Helper()
	gdb := testutil.NewDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr, rc := testutil.NewRedis(t)
	emitter := notify.EmitterFunc(func(context.Context, notify.Recipient, notify.Notification) bool { return true })

	repos := repository.NewRepositories(gdb)
	transactor := repository.NewTransactor(gdb)
	jwtService := auth.NewJWTService("router-test-secret")
	tokens := auth.NewTokenStore(rc)

	if sweeper == nil {
		sweeper = service.NewSweepService(repos.Borrowings, rc, emitter, nil, logger)
	}
	borrowings := service.NewBorrowingService(repos, transactor, emitter, service.BorrowingOptions{
		LateFeePerDay: decimal.RequireFromString("0.50"),
		Logger:        logger,
	})

	h := Handlers{
		Auth:         handler.NewAuthHandler(service.NewAuthService(repos.Users, jwtService, tokens, emitter, "http://localhost:3000", logger)),
		Book:         handler.NewBookHandler(service.NewBookService(repos.Books, transactor, rc, logger)),
		Borrowing:    handler.NewBorrowingHandler(borrowings, sweeper),
		Admin:        handler.NewAdminHandler(service.NewUserService(repos, transactor, logger), service.NewNotificationService(repos.Notifications, emitter, "http://localhost:3000")),
		Notification: handler.NewNotificationHandler(service.NewNotificationService(repos.Notifications, emitter, "http://localhost:3000")),
	}

	e := echo.New()
	Register(e, &config.Config{CronSecret: secret}, h, jwtService, tokens)
	return &testServer{e: e, db: gdb, jwt: jwtService, tokens: tokens, redis: mr}
}

func (s *testServer) token(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(user)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errors.ErrorResponse
	decode(t, rec, &body)
	return body.Code
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSweepEndpoint_CronSecret(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + cronSecret, http.StatusUnauthorized},
		{"valid secret", "Bearer " + cronSecret, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/borrowings/sweep", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			srv.e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("admin user token is not the cron secret", func(t *testing.T) {
		admin := testutil.CreateUser(t, srv.db, "admin@example.com", model.RoleAdmin)
		rec := srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", srv.token(t, admin), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSweepEndpoint_DisabledWithoutSecret(t *testing.T) {
	srv := newTestServer(t, "", nil)
	rec := srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/borrowings/sweep", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer ")
	rec = httptest.NewRecorder()
	srv.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSweepEndpoint_MarksOverdue(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	user := testutil.CreateUser(t, srv.db, "late@example.com", model.RoleUser)
	book := testutil.CreateBook(t, srv.db, "Dune", 1)
	late := model.NewBorrowing(user.ID, book.ID, time.Now().UTC().AddDate(0, 0, -20))
	require.NoError(t, repository.NewBorrowingRepository(srv.db).Create(context.Background(), late))

	rec := srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", cronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report service.SweepReport
	decode(t, rec, &report)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.MarkedOverdue)

	rec = srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", cronSecret, nil)
	decode(t, rec, &report)
	assert.Equal(t, 0, report.MarkedOverdue)
}

func TestSweepEndpoint_InProgress(t *testing.T) {
	srv := newTestServer(t, cronSecret, stubSweeper{err: errors.ErrSweepInProgress})
	rec := srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", cronSecret, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SWEEP_IN_PROGRESS", errorCode(t, rec))
}

func TestSecuredRoutes_RequireAccessToken(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	user := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)

	rec := srv.do(t, http.MethodGet, "/api/borrowings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/borrowings", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, refresh, err := srv.jwt.GenerateRefreshToken(user)
	require.NoError(t, err)
	rec = srv.do(t, http.MethodGet, "/api/borrowings", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are not bearer credentials")

	access := srv.token(t, user)
	rec = srv.do(t, http.MethodGet, "/api/borrowings", access, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	claims, err := srv.jwt.ValidateAccessToken(access)
	require.NoError(t, err)
	require.NoError(t, srv.tokens.BlacklistAccessToken(context.Background(), claims.ID, time.Minute))
	rec = srv.do(t, http.MethodGet, "/api/borrowings", access, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	user := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)
	admin := testutil.CreateUser(t, srv.db, "admin@example.com", model.RoleAdmin)

	rec := srv.do(t, http.MethodGet, "/api/admin/stats", srv.token(t, user), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/admin/stats", srv.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats service.Stats
	decode(t, rec, &stats)
	assert.EqualValues(t, 2, stats.TotalUsers)

	book := map[string]interface{}{
		"title": "Emma", "author": "Jane Austen", "isbn": "9780141439587",
		"published_year": 1815, "genre": "Classic", "total_copies": 2,
	}
	rec = srv.do(t, http.MethodPost, "/api/admin/books", srv.token(t, user), book)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/admin/books", srv.token(t, admin), book)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBorrowAndReturnFlow(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	reader := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)
	other := testutil.CreateUser(t, srv.db, "other@example.com", model.RoleUser)
	book := testutil.CreateBook(t, srv.db, "Middlemarch", 1)
	token := srv.token(t, reader)

	rec := srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"book_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"book_id": book.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var borrowing model.Borrowing
	decode(t, rec, &borrowing)
	assert.Equal(t, model.BorrowingStatusBorrowed, borrowing.Status)
	assert.Equal(t, 0, testutil.ReloadBook(t, srv.db, book.ID).AvailableCopies)

	rec = srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"book_id": book.ID.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BOOK_UNAVAILABLE", errorCode(t, rec))

	path := "/api/borrowings/" + borrowing.ID.String() + "/return"
	rec = srv.do(t, http.MethodPost, path, srv.token(t, other), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_OWNER", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &borrowing)
	assert.Equal(t, model.BorrowingStatusReturned, borrowing.Status)
	assert.NotNil(t, borrowing.ReturnDate)
	assert.Equal(t, 1, testutil.ReloadBook(t, srv.db, book.ID).AvailableCopies)

	rec = srv.do(t, http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_RETURNED", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/borrowings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []model.Borrowing
	decode(t, rec, &mine)
	assert.Len(t, mine, 1)
}

func TestLoginThenLogout(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)

	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens handler.AuthResponse
	decode(t, rec, &tokens)

	rec = srv.do(t, http.MethodGet, "/api/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/logout", tokens.AccessToken, map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRateLimiter(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	var last int
	for i := 0; i <= authRateBurst; i++ {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "nobody@example.com", "password": "wrong",
		})
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestCatalogueIsPublic(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	book := testutil.CreateBook(t, srv.db, "Middlemarch", 2)
	testutil.CreateBook(t, srv.db, "Persuasion", 1)

	rec := srv.do(t, http.MethodGet, "/api/books?q=middle", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var books []model.Book
	decode(t, rec, &books)
	require.Len(t, books, 1)
	assert.Equal(t, book.ID, books[0].ID)

	rec = srv.do(t, http.MethodGet, "/api/books/"+book.ID.String(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/books/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BOOK_NOT_FOUND", errorCode(t, rec))

	rec = srv.do(t, http.MethodGet, "/api/books/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsAreScopedToOwner(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	reader := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)
	other := testutil.CreateUser(t, srv.db, "other@example.com", model.RoleUser)
	n := &model.Notification{UserID: reader.ID, Kind: "due_soon", Title: "Book Due Date Reminder", Message: "Dune is due soon."}
	require.NoError(t, repository.NewNotificationRepository(srv.db).Create(context.Background(), n))

	rec := srv.do(t, http.MethodGet, "/api/notifications", srv.token(t, other), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Notification
	decode(t, rec, &list)
	assert.Empty(t, list)

	path := "/api/notifications/" + n.ID.String() + "/read"
	rec = srv.do(t, http.MethodPut, path, srv.token(t, other), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, path, srv.token(t, reader), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/notifications", srv.token(t, reader), nil)
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}

func TestAdminUserManagement(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	admin := testutil.CreateUser(t, srv.db, "admin@example.com", model.RoleAdmin)
	member := testutil.CreateUser(t, srv.db, "member@example.com", model.RoleUser)
	token := srv.token(t, admin)

	rec := srv.do(t, http.MethodPut, "/api/admin/users/"+member.ID.String()+"/role", token, map[string]string{"role": "librarian"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/admin/users/"+member.ID.String()+"/role", token, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.User
	decode(t, rec, &updated)
	assert.Equal(t, model.RoleAdmin, updated.Role)

	rec = srv.do(t, http.MethodDelete, "/api/admin/users/"+admin.ID.String(), token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/admin/users/"+member.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/admin/users", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []model.User
	decode(t, rec, &users)
	assert.Len(t, users, 1)

	rec = srv.do(t, http.MethodPost, "/api/admin/test-email", token, map[string]string{"email": "ops@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var report handler.TestEmailResponse
	decode(t, rec, &report)
	assert.True(t, report.Results.PasswordReset)
	assert.True(t, report.Results.OverdueNotification)
}

func TestBorrow_AcceptsCamelCaseBookID(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	reader := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)
	book := testutil.CreateBook(t, srv.db, "Persuasion", 2)
	token := srv.token(t, reader)

	rec := srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"bookId": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"bookId": book.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var borrowing model.Borrowing
	decode(t, rec, &borrowing)
	assert.Equal(t, book.ID, borrowing.BookID)
	assert.Equal(t, 1, testutil.ReloadBook(t, srv.db, book.ID).AvailableCopies)
}

func TestBookDetail_CountersFollowLoansThroughCache(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	reader := testutil.CreateUser(t, srv.db, "reader@example.com", model.RoleUser)
	admin := testutil.CreateUser(t, srv.db, "admin@example.com", model.RoleAdmin)
	book := testutil.CreateBook(t, srv.db, "Middlemarch", 1)
	token := srv.token(t, reader)
	path := "/api/books/" + book.ID.String()

	available := func() int {
		t.Helper()
		rec := srv.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got model.Book
		decode(t, rec, &got)
		return got.AvailableCopies
	}

	assert.Equal(t, 1, available())
	assert.True(t, srv.redis.Exists("book:"+book.ID.String()), "detail reads fill the cache")

	rec := srv.do(t, http.MethodPost, "/api/borrowings", token, map[string]string{"book_id": book.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var borrowing model.Borrowing
	decode(t, rec, &borrowing)
	assert.Equal(t, 0, available())

	rec = srv.do(t, http.MethodPost, "/api/borrowings/"+borrowing.ID.String()+"/return", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, available())

	rec = srv.do(t, http.MethodPut, "/api/admin/books/"+book.ID.String(), srv.token(t, admin), map[string]interface{}{
		"title": "Middlemarch (Revised)", "author": book.Author, "isbn": book.ISBN,
		"published_year": book.PublishedYear, "genre": book.Genre, "total_copies": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var edited model.Book
	decode(t, rec, &edited)
	assert.Equal(t, "Middlemarch (Revised)", edited.Title)
	assert.Equal(t, 3, edited.TotalCopies)
	assert.Equal(t, 3, edited.AvailableCopies)
}

func TestSweepEndpoint_LockHeldByAnotherPass(t *testing.T) {
	srv := newTestServer(t, cronSecret, nil)
	require.NoError(t, srv.redis.Set("lock:overdue_sweep", "another-pass"))

	rec := srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", cronSecret, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SWEEP_IN_PROGRESS", errorCode(t, rec))
	got, err := srv.redis.Get("lock:overdue_sweep")
	require.NoError(t, err)
	assert.Equal(t, "another-pass", got, "a refused pass leaves the holder's lock alone")

	srv.redis.Del("lock:overdue_sweep")
	rec = srv.do(t, http.MethodGet, "/api/admin/borrowings/sweep", cronSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, srv.redis.Exists("lock:overdue_sweep"), "a finished pass releases its lock")
}
