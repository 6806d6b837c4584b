package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"library/internal/errors"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
	"library/internal/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newBorrowingService(gdb *gorm.DB, emitter notify.Emitter, clk *clock) BorrowingService {
	return NewBorrowingService(
		repository.NewRepositories(gdb),
		repository.NewTransactor(gdb),
		emitter,
		BorrowingOptions{LateFeePerDay: decimal.RequireFromString("0.50"), Now: clk.Now},
	)
}

func acceptingEmitter() *MockEmitter {
	e := new(MockEmitter)
	e.On("Emit", mock.Anything, mock.Anything, mock.Anything).Return(true)
	return e
}

func TestBorrowingService_BorrowKeepsLedger(t *testing.T) {
	gdb := testutil.NewDB(t)
	user := testutil.CreateUser(t, gdb, "reader@example.com", model.RoleUser)
	book := testutil.CreateBook(t, gdb, "Dune", 3)
	emitter := acceptingEmitter()
	svc := newBorrowingService(gdb, emitter, newClock(epoch))

	b, err := svc.Borrow(context.Background(), user.ID, book.ID)
	require.NoError(t, err)

	assert.Equal(t, model.BorrowingStatusBorrowed, b.Status)
	assert.Equal(t, epoch, b.BorrowDate)
	assert.Equal(t, epoch.Add(14*24*time.Hour), b.DueDate)
	assert.Nil(t, b.ReturnDate)

	reloaded := testutil.ReloadBook(t, gdb, book.ID)
	assert.Equal(t, 2, reloaded.AvailableCopies)
	assert.Equal(t, reloaded.TotalCopies-testutil.CountActive(t, gdb, book.ID), reloaded.AvailableCopies)

	emitter.AssertCalled(t, "Emit", mock.Anything,
		notify.Recipient{UserID: user.ID, Name: user.Name, Email: user.Email},
		notify.BorrowConfirmed{BookTitle: "Dune", DueDate: b.DueDate})
}

func TestBorrowingService_BorrowFailures(t *testing.T) {
	gdb := testutil.NewDB(t)
	user := testutil.CreateUser(t, gdb, "reader@example.com", model.RoleUser)
	other := testutil.CreateUser(t, gdb, "other@example.com", model.RoleUser)
	book := testutil.CreateBook(t, gdb, "Dune", 2)
	empty := testutil.CreateBook(t, gdb, "Emma", 0)
	svc := newBorrowingService(gdb, acceptingEmitter(), newClock(epoch))
	ctx := context.Background()

	_, err := svc.Borrow(ctx, user.ID, uuid.New())
	assert.ErrorIs(t, err, errors.ErrBookNotFound)

	_, err = svc.Borrow(ctx, user.ID, empty.ID)
	assert.ErrorIs(t, err, errors.ErrBookUnavailable)
	assert.Equal(t, 0, testutil.ReloadBook(t, gdb, empty.ID).AvailableCopies)
	assert.Zero(t, testutil.CountActive(t, gdb, empty.ID))

	_, err = svc.Borrow(ctx, user.ID, book.ID)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, user.ID, book.ID)
	assert.ErrorIs(t, err, errors.ErrDuplicateActiveBorrowing)
	assert.Equal(t, 1, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)
	assert.Equal(t, 1, testutil.CountActive(t, gdb, book.ID))

	_, err = svc.Borrow(ctx, other.ID, book.ID)
	require.NoError(t, err, "another user may take the remaining copy")

	_, err = svc.Borrow(ctx, uuid.New(), book.ID)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestBorrowingService_NotificationFailureKeepsBorrow(t *testing.T) {
	gdb := testutil.NewDB(t)
	user := testutil.CreateUser(t, gdb, "reader@example.com", model.RoleUser)
	book := testutil.CreateBook(t, gdb, "Dune", 1)
	emitter := new(MockEmitter)
	emitter.On("Emit", mock.Anything, mock.Anything, mock.Anything).Return(false)
	svc := newBorrowingService(gdb, emitter, newClock(epoch))

	_, err := svc.Borrow(context.Background(), user.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)
}

func TestBorrowingService_ConcurrentBorrowOfLastCopy(t *testing.T) {
	gdb := testutil.NewDB(t)
	book := testutil.CreateBook(t, gdb, "Dune", 1)
	alice := testutil.CreateUser(t, gdb, "alice@example.com", model.RoleUser)
	bob := testutil.CreateUser(t, gdb, "bob@example.com", model.RoleUser)
	svc := newBorrowingService(gdb, acceptingEmitter(), newClock(epoch))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, u := range []*model.User{alice, bob} {
		wg.Add(1)
		go func(i int, userID uuid.UUID) {
			defer wg.Done()
			_, results[i] = svc.Borrow(context.Background(), userID, book.ID)
		}(i, u.ID)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, errors.ErrBookUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)
	assert.Equal(t, 0, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)
	assert.Equal(t, 1, testutil.CountActive(t, gdb, book.ID))
}

func TestBorrowingService_Return(t *testing.T) {
	gdb := testutil.NewDB(t)
	owner := testutil.CreateUser(t, gdb, "owner@example.com", model.RoleUser)
	stranger := testutil.CreateUser(t, gdb, "stranger@example.com", model.RoleUser)
	book := testutil.CreateBook(t, gdb, "Dune", 1)
	clk := newClock(epoch)
	svc := newBorrowingService(gdb, acceptingEmitter(), clk)
	ctx := context.Background()

	b, err := svc.Borrow(ctx, owner.ID, book.ID)
	require.NoError(t, err)

	_, err = svc.Return(ctx, uuid.New(), Actor{UserID: owner.ID})
	assert.ErrorIs(t, err, errors.ErrBorrowingNotFound)

	_, err = svc.Return(ctx, b.ID, Actor{UserID: stranger.ID})
	assert.ErrorIs(t, err, errors.ErrNotOwner)
	assert.Equal(t, 0, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)

	clk.Advance(3 * 24 * time.Hour)
	returned, err := svc.Return(ctx, b.ID, Actor{UserID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, model.BorrowingStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, returned.LateFee.IsZero())
	assert.Equal(t, 1, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)

	_, err = svc.Return(ctx, b.ID, Actor{UserID: owner.ID})
	assert.ErrorIs(t, err, errors.ErrAlreadyReturned)
	assert.Equal(t, 1, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies, "double return must not touch the counter")
}

func TestBorrowingService_ReturnOverdueChargesLateFee(t *testing.T) {
	gdb := testutil.NewDB(t)
	owner := testutil.CreateUser(t, gdb, "owner@example.com", model.RoleUser)
	admin := testutil.CreateUser(t, gdb, "admin@example.com", model.RoleAdmin)
	book := testutil.CreateBook(t, gdb, "Dune", 1)
	clk := newClock(epoch)
	svc := newBorrowingService(gdb, acceptingEmitter(), clk)
	ctx := context.Background()

	b, err := svc.Borrow(ctx, owner.ID, book.ID)
	require.NoError(t, err)
	_, err = repository.NewBorrowingRepository(gdb).MarkOverdue(ctx, b.ID)
	require.NoError(t, err)

	// two days and one hour late
	clk.Advance(16*24*time.Hour + time.Hour)
	returned, err := svc.Return(ctx, b.ID, Actor{UserID: admin.ID, Admin: true})
	require.NoError(t, err)
	assert.Equal(t, model.BorrowingStatusReturned, returned.Status)
	assert.Equal(t, "1.50", returned.LateFee.StringFixed(2))
	assert.Equal(t, 1, testutil.ReloadBook(t, gdb, book.ID).AvailableCopies)
}

func TestBorrowingService_Queries(t *testing.T) {
	gdb := testutil.NewDB(t)
	owner := testutil.CreateUser(t, gdb, "owner@example.com", model.RoleUser)
	stranger := testutil.CreateUser(t, gdb, "stranger@example.com", model.RoleUser)
	book := testutil.CreateBook(t, gdb, "Dune", 1)
	svc := newBorrowingService(gdb, acceptingEmitter(), newClock(epoch))
	ctx := context.Background()

	b, err := svc.Borrow(ctx, owner.ID, book.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, b.ID, Actor{UserID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Book.Title)

	_, err = svc.Get(ctx, b.ID, Actor{UserID: stranger.ID})
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = svc.Get(ctx, b.ID, Actor{UserID: stranger.ID, Admin: true})
	assert.NoError(t, err)

	mine, err := svc.ListMine(ctx, stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = svc.ListAll(ctx, "LOST")
	assert.ErrorIs(t, err, errors.ErrValidation)

	all, err := svc.ListAll(ctx, model.BorrowingStatusBorrowed)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
