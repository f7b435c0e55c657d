package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tripchat-service/internal/mocks"
	"tripchat-service/internal/notify"
)

func TestRegisterTokenRejectsEmpty(t *testing.T) {
	n := notify.NewNotifier(new(mocks.DeviceTokenRepoMock), new(mocks.PushProviderMock))

	err := n.RegisterToken(context.Background(), 1, "")

	require.Error(t, err)
}

func TestRegisterTokenSaves(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	n := notify.NewNotifier(tokens, new(mocks.PushProviderMock))

	tokens.On("SaveToken", mock.Anything, 1, "tok-a").Return(nil).Once()

	require.NoError(t, n.RegisterToken(context.Background(), 1, "tok-a"))
	tokens.AssertExpectations(t)
}

func TestNotifyUserAllDelivered(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	provider := new(mocks.PushProviderMock)
	n := notify.NewNotifier(tokens, provider)

	tokens.On("TokensByUser", mock.Anything, 1).Return([]string{"tok-a", "tok-b"}, nil).Once()
	provider.On("Send", mock.Anything, "tok-a", "부산 여행", "minsu: hello").Return(nil).Once()
	provider.On("Send", mock.Anything, "tok-b", "부산 여행", "minsu: hello").Return(nil).Once()

	report, err := n.NotifyUser(context.Background(), 1, "부산 여행", "minsu: hello")

	require.NoError(t, err)
	assert.Equal(t, notify.DeliveryReport{Attempted: 2, Delivered: 2}, report)
	provider.AssertExpectations(t)
}

func TestNotifyUserPrunesRejectedToken(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	provider := new(mocks.PushProviderMock)
	n := notify.NewNotifier(tokens, provider)

	tokens.On("TokensByUser", mock.Anything, 1).Return([]string{"stale", "fresh"}, nil).Once()
	provider.On("Send", mock.Anything, "stale", "t", "b").Return(notify.ErrTokenInvalid).Once()
	tokens.On("DeleteToken", mock.Anything, "stale").Return(nil).Once()
	provider.On("Send", mock.Anything, "fresh", "t", "b").Return(nil).Once()

	report, err := n.NotifyUser(context.Background(), 1, "t", "b")

	require.NoError(t, err)
	assert.Equal(t, notify.DeliveryReport{Attempted: 2, Delivered: 1, Pruned: 1}, report)
	tokens.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestNotifyUserTransientFailureAlsoPrunes(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	provider := new(mocks.PushProviderMock)
	n := notify.NewNotifier(tokens, provider)

	tokens.On("TokensByUser", mock.Anything, 1).Return([]string{"tok-a"}, nil).Once()
	provider.On("Send", mock.Anything, "tok-a", "t", "b").Return(assert.AnError).Once()
	tokens.On("DeleteToken", mock.Anything, "tok-a").Return(nil).Once()

	report, err := n.NotifyUser(context.Background(), 1, "t", "b")

	require.NoError(t, err)
	assert.Equal(t, notify.DeliveryReport{Attempted: 1, Pruned: 1}, report)
}

func TestNotifyUserNoTokens(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	provider := new(mocks.PushProviderMock)
	n := notify.NewNotifier(tokens, provider)

	tokens.On("TokensByUser", mock.Anything, 1).Return([]string{}, nil).Once()

	report, err := n.NotifyUser(context.Background(), 1, "t", "b")

	require.NoError(t, err)
	assert.Equal(t, notify.DeliveryReport{}, report)
	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyUserTokenLoadFailure(t *testing.T) {
	tokens := new(mocks.DeviceTokenRepoMock)
	n := notify.NewNotifier(tokens, new(mocks.PushProviderMock))

	tokens.On("TokensByUser", mock.Anything, 1).Return(nil, assert.AnError).Once()

	_, err := n.NotifyUser(context.Background(), 1, "t", "b")

	require.Error(t, err)
}
