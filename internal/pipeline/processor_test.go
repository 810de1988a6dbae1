package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Typed Mocks ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context) (dispatch.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(dispatch.Credential), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) List(ctx context.Context, cred dispatch.Credential, pageSize int) ([]dispatch.DirectoryEntry, error) {
	args := m.Called(ctx, cred, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dispatch.DirectoryEntry), args.Error(1)
}

func (m *mockDirectory) Get(ctx context.Context, cred dispatch.Credential, userID string) (*dispatch.DirectoryEntry, error) {
	args := m.Called(ctx, cred, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.DirectoryEntry), args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, cred dispatch.Credential, token string, msg dispatch.Message) error {
	return m.Called(ctx, cred, token, msg).Error(0)
}

var testCred = dispatch.Credential{Scheme: dispatch.SchemeBearer, Token: "ya29.test"}

func adminDirectory() []dispatch.DirectoryEntry {
	return []dispatch.DirectoryEntry{
		{UserID: "a1", Role: "admin", DeviceToken: "tok-a1"},
		{UserID: "u1", Role: "user", DeviceToken: "tok-u1"},
		{UserID: "a2", Role: "admin", DeviceToken: "tok-a2"},
		{UserID: "a3", Role: "admin"},
		{UserID: "x1", Role: "Admin", DeviceToken: "tok-x1"},
	}
}

func newBridge(resolver dispatch.CredentialResolver, dir dispatch.Directory, sender dispatch.Sender) *pipeline.Bridge {
	logger := newTestLogger()
	return pipeline.NewBridge(
		resolver,
		pipeline.NewRecipients(dir, "admin", 100, logger),
		pipeline.NewFanOut(sender, 0, logger),
		logger,
	)
}

func TestBridge_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("Scenario A - admins with tokens", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("List", mock.Anything, testCred, 100).Return(adminDirectory(), nil)
		sender.On("Send", mock.Anything, testCred, "tok-a1", mock.MatchedBy(func(m dispatch.Message) bool {
			return m.Content.Title == "Alert" && m.Content.Body == "Check now" && m.Data["report_id"] == "r1"
		})).Return(nil)
		sender.On("Send", mock.Anything, testCred, "tok-a2", mock.Anything).Return(nil)

		req := &dispatch.NotificationRequest{Type: dispatch.ToAdmins, Title: "Alert", Body: "Check now", ReportID: "r1"}
		result, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Result{Sent: 2, Failed: 0}, result)
		sender.AssertNumberOfCalls(t, "Send", 2)
		sender.AssertExpectations(t)
	})

	t.Run("Scenario B - user without token", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("Get", mock.Anything, testCred, "u9").Return(&dispatch.DirectoryEntry{UserID: "u9", Role: "user"}, nil)

		req := &dispatch.NotificationRequest{Type: dispatch.ToUser, UserID: "u9", Title: "Hi", Body: "Msg", ReportID: "r2"}
		result, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Result{}, result)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Scenario C - one rejected delivery of three", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("List", mock.Anything, testCred, 100).Return([]dispatch.DirectoryEntry{
			{UserID: "a1", Role: "admin", DeviceToken: "tok-1"},
			{UserID: "a2", Role: "admin", DeviceToken: "tok-2"},
			{UserID: "a3", Role: "admin", DeviceToken: "tok-3"},
		}, nil)
		sender.On("Send", mock.Anything, testCred, "tok-1", mock.Anything).Return(nil)
		sender.On("Send", mock.Anything, testCred, "tok-2", mock.Anything).Return(fmt.Errorf("%w: status=404", dispatch.ErrDelivery))
		sender.On("Send", mock.Anything, testCred, "tok-3", mock.Anything).Return(nil)

		req := &dispatch.NotificationRequest{Type: dispatch.ToAdmins, Title: "Alert", Body: "Check now", ReportID: "r3"}
		result, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Result{Sent: 2, Failed: 1}, result)
	})

	t.Run("Unknown user is a soft failure", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("Get", mock.Anything, testCred, "ghost").Return(nil, dispatch.ErrNotFound)

		req := &dispatch.NotificationRequest{Type: dispatch.ToUser, UserID: "ghost", Title: "Hi", Body: "Msg", ReportID: "r2"}
		result, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, 0, result.Sent)
	})

	t.Run("Directory outage is a soft failure", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("List", mock.Anything, testCred, 100).Return(nil, fmt.Errorf("%w: status=503", dispatch.ErrDirectory))

		req := &dispatch.NotificationRequest{Type: dispatch.ToAdmins, Title: "Alert", Body: "Check now", ReportID: "r1"}
		result, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Result{}, result)
	})

	t.Run("Credential failure aborts before the directory", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(dispatch.Credential{}, fmt.Errorf("%w: status 400", dispatch.ErrAuth))

		req := &dispatch.NotificationRequest{Type: dispatch.ToAdmins, Title: "Alert", Body: "Check now", ReportID: "r1"}
		_, err := newBridge(resolver, dir, sender).Handle(ctx, req)

		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrAuth))
		dir.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("No resolver sends with an empty credential", func(t *testing.T) {
		dir := new(mockDirectory)
		sender := new(mockSender)

		dir.On("Get", mock.Anything, dispatch.Credential{}, "u9").
			Return(&dispatch.DirectoryEntry{UserID: "u9", Role: "user", DeviceToken: "tok-u9"}, nil)
		sender.On("Send", mock.Anything, dispatch.Credential{}, "tok-u9", mock.Anything).Return(nil)

		req := &dispatch.NotificationRequest{Type: dispatch.ToUser, UserID: "u9", Title: "Hi", Body: "Msg", ReportID: "r2"}
		result, err := newBridge(nil, dir, sender).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, dispatch.Result{Sent: 1}, result)
		sender.AssertExpectations(t)
	})

	t.Run("Invalid request aborts before the credential", func(t *testing.T) {
		resolver := new(mockResolver)

		req := &dispatch.NotificationRequest{Type: dispatch.ToUser, Title: "Hi", Body: "Msg", ReportID: "r2"}
		_, err := newBridge(resolver, new(mockDirectory), new(mockSender)).Handle(ctx, req)

		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrInvalidRequest))
		resolver.AssertNotCalled(t, "Resolve", mock.Anything)
	})
}

func TestRecipients_ResolveForRole(t *testing.T) {
	ctx := context.Background()
	dir := new(mockDirectory)
	dir.On("List", mock.Anything, testCred, 100).Return(adminDirectory(), nil)
	recipients := pipeline.NewRecipients(dir, "admin", 0, newTestLogger())

	first := recipients.ResolveForRole(ctx, testCred, "admin")
	second := recipients.ResolveForRole(ctx, testCred, "admin")

	// Exact role match, token present, directory order.
	assert.Equal(t, []string{"tok-a1", "tok-a2"}, first)
	assert.Equal(t, first, second)
}

func TestFanOut_Dispatch(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Counts always cover every token", func(t *testing.T) {
		sender := new(mockSender)
		tokens := make([]string, 0, 25)
		for i := 0; i < 25; i++ {
			token := fmt.Sprintf("tok-%d", i)
			tokens = append(tokens, token)
			var err error
			if i%4 == 0 {
				err = dispatch.ErrDelivery
			}
			sender.On("Send", mock.Anything, testCred, token, mock.Anything).Return(err)
		}

		result := pipeline.NewFanOut(sender, 0, logger).Dispatch(ctx, testCred, tokens, dispatch.Message{})

		assert.Equal(t, 25, result.Sent+result.Failed)
		assert.Equal(t, 7, result.Failed)
	})

	t.Run("Sends run concurrently", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		sender := new(mockSender)
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
			}).
			Return(nil)

		tokens := []string{"t1", "t2", "t3", "t4"}
		result := pipeline.NewFanOut(sender, 2, logger).Dispatch(ctx, testCred, tokens, dispatch.Message{})

		assert.Equal(t, 4, result.Sent)
		assert.LessOrEqual(t, peak.Load(), int32(2))
		assert.Greater(t, peak.Load(), int32(1))
	})

	t.Run("No tokens, no sends", func(t *testing.T) {
		sender := new(mockSender)
		result := pipeline.NewFanOut(sender, 0, logger).Dispatch(ctx, testCred, nil, dispatch.Message{})
		assert.Equal(t, dispatch.Result{}, result)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestProcessor_Acknowledgement(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	req := &dispatch.NotificationRequest{Type: dispatch.ToAdmins, Title: "Alert", Body: "Check now", ReportID: "r1"}

	t.Run("Auth failure is returned for redelivery", func(t *testing.T) {
		resolver := new(mockResolver)
		resolver.On("Resolve", mock.Anything).Return(dispatch.Credential{}, dispatch.ErrAuth)

		processor := pipeline.NewProcessor(newBridge(resolver, new(mockDirectory), new(mockSender)), logger)
		err := processor(ctx, messagepipeline.Message{}, req)

		require.Error(t, err)
	})

	t.Run("Partial delivery failure is acknowledged", func(t *testing.T) {
		resolver := new(mockResolver)
		dir := new(mockDirectory)
		sender := new(mockSender)

		resolver.On("Resolve", mock.Anything).Return(testCred, nil)
		dir.On("List", mock.Anything, testCred, 100).Return(adminDirectory(), nil)
		sender.On("Send", mock.Anything, testCred, "tok-a1", mock.Anything).Return(dispatch.ErrDelivery)
		sender.On("Send", mock.Anything, testCred, "tok-a2", mock.Anything).Return(nil)

		processor := pipeline.NewProcessor(newBridge(resolver, dir, sender), logger)
		err := processor(ctx, messagepipeline.Message{}, req)

		require.NoError(t, err)
		sender.AssertNumberOfCalls(t, "Send", 2)
	})
}
