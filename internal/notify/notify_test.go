package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"library/internal/model"
	"library/internal/repository"
	"library/internal/testutil"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
		f.sent = append(f.sent, buf.String())
	}
	return nil
}

type countingEmitter struct {
	mu    sync.Mutex
	kinds []Kind
	ok    bool
}

func (c *countingEmitter) Emit(_ context.Context, _ Recipient, n Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, n.Kind())
	return c.ok
}

func (c *countingEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

var reader = Recipient{UserID: uuid.New(), Name: "Ada", Email: "ada@example.com"}

func TestTemplatesCoverEveryKind(t *testing.T) {
	for _, k := range []Kind{KindBorrowConfirmed, KindDueSoon, KindOverdue, KindPasswordReset} {
		assert.NotNil(t, templates.Lookup(string(k)), "missing template %s", k)
	}
}

func TestMailEmitter_Emit(t *testing.T) {
	sender := &fakeSender{}
	e := NewMailEmitter(sender, "library@example.com", nil)

	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	ok := e.Emit(context.Background(), reader, Overdue{BookTitle: "Dune", DueDate: due})

	require.True(t, ok)
	require.Len(t, sender.sent, 1)
	raw := sender.sent[0]
	assert.Contains(t, raw, "Subject: Overdue Book Notice")
	assert.Contains(t, raw, "ada@example.com")
	assert.Contains(t, raw, "Dune")
	assert.Contains(t, raw, "Mar 14, 2026")
}

func TestMailEmitter_ReportsFailure(t *testing.T) {
	e := NewMailEmitter(&fakeSender{err: errors.New("connection refused")}, "library@example.com", nil)
	assert.False(t, e.Emit(context.Background(), reader, DueSoon{BookTitle: "Dune", DueDate: time.Now()}))

	bad := Recipient{Email: "not an address"}
	assert.False(t, NewMailEmitter(&fakeSender{}, "library@example.com", nil).
		Emit(context.Background(), bad, DueSoon{BookTitle: "Dune"}))
}

func TestLogEmitter_ReportsFailure(t *testing.T) {
	assert.False(t, NewLogEmitter(nil).Emit(context.Background(), reader, BorrowConfirmed{BookTitle: "Dune"}))
}

func TestMulti(t *testing.T) {
	good := &countingEmitter{ok: true}
	bad := &countingEmitter{ok: false}

	assert.True(t, Multi(good, good).Emit(context.Background(), reader, Overdue{}))
	assert.False(t, Multi(bad, good).Emit(context.Background(), reader, Overdue{}))
	assert.Equal(t, 3, good.count(), "every emitter runs even after a failure")
}

func TestInAppEmitter(t *testing.T) {
	gdb := testutil.NewDB(t)
	user := testutil.CreateUser(t, gdb, "ada@example.com", model.RoleUser)
	repo := repository.NewNotificationRepository(gdb)
	e := NewInAppEmitter(repo, nil)
	ctx := context.Background()
	to := Recipient{UserID: user.ID, Email: user.Email}

	assert.True(t, e.Emit(ctx, to, BorrowConfirmed{BookTitle: "Dune", DueDate: time.Now()}))
	assert.True(t, e.Emit(ctx, to, PasswordReset{ResetLink: "http://x"}))
	assert.True(t, e.Emit(ctx, Recipient{Email: "guest@example.com"}, Overdue{}))

	rows, err := repo.ListByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(KindBorrowConfirmed), rows[0].Kind)
	assert.Contains(t, rows[0].Message, "Dune")
}

func TestDispatcher_DeliversQueuedOnClose(t *testing.T) {
	next := &countingEmitter{ok: true}
	d := NewDispatcher(next, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		assert.True(t, d.Emit(ctx, reader, DueSoon{}))
	}
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, next.count())

	// after close delivery is synchronous
	assert.True(t, d.Emit(context.Background(), reader, DueSoon{}))
	assert.Equal(t, 6, next.count())
}

func TestDispatcher_FallsBackWhenFull(t *testing.T) {
	block := make(chan struct{})
	var delivered sync.WaitGroup
	delivered.Add(1)
	first := true
	var mu sync.Mutex
	slow := EmitterFunc(func(ctx context.Context, to Recipient, n Notification) bool {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			delivered.Done()
			<-block
		}
		return n.Kind() != KindOverdue
	})
	d := NewDispatcher(slow, 1, nil)

	require.True(t, d.Emit(context.Background(), reader, DueSoon{}))
	delivered.Wait() // worker is now busy
	require.True(t, d.Emit(context.Background(), reader, DueSoon{}))

	// queue is full so this one runs inline and reports its own result
	assert.False(t, d.Emit(context.Background(), reader, Overdue{}))

	close(block)
	require.NoError(t, d.Close(context.Background()))
}
