package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"tripchat-service/internal/ingest"
	"tripchat-service/internal/models"
	"tripchat-service/internal/notify"
)

type MembershipRepoMock struct {
	mock.Mock
}

func (m *MembershipRepoMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(models.Room), args.Error(1)
}

func (m *MembershipRepoMock) RoomExists(ctx context.Context, roomID int) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func (m *MembershipRepoMock) MembersOf(ctx context.Context, roomID int) ([]models.RoomMember, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoomMember), args.Error(1)
}

func (m *MembershipRepoMock) MemberName(ctx context.Context, roomID, userID int) (string, error) {
	args := m.Called(ctx, roomID, userID)
	return args.String(0), args.Error(1)
}

func (m *MembershipRepoMock) RoomIDForPost(ctx context.Context, postID int) (int, error) {
	args := m.Called(ctx, postID)
	return args.Int(0), args.Error(1)
}

type MessageRepoMock struct {
	mock.Mock
}

func (m *MessageRepoMock) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.ChatMessage), args.Error(1)
}

func (m *MessageRepoMock) HistoryByRoom(ctx context.Context, roomID int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MessageRepoMock) LatestByRooms(ctx context.Context, roomIDs []int) (map[int]models.ChatMessage, error) {
	args := m.Called(ctx, roomIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]models.ChatMessage), args.Error(1)
}

type DeviceTokenRepoMock struct {
	mock.Mock
}

func (m *DeviceTokenRepoMock) SaveToken(ctx context.Context, userID int, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *DeviceTokenRepoMock) TokensByUser(ctx context.Context, userID int) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *DeviceTokenRepoMock) DeleteToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *DeviceTokenRepoMock) DeleteAllForUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type BrokerPublisherMock struct {
	mock.Mock
}

func (m *BrokerPublisherMock) Publish(ctx context.Context, msg models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *BrokerPublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Upload(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, r, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *BlobStoreMock) Delete(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

type PushProviderMock struct {
	mock.Mock
}

func (m *PushProviderMock) Send(ctx context.Context, token, title, body string) error {
	args := m.Called(ctx, token, title, body)
	return args.Error(0)
}

type MessageGatewayMock struct {
	mock.Mock
}

func (m *MessageGatewayMock) Submit(ctx context.Context, req ingest.SubmitRequest) (models.ChatMessage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ChatMessage), args.Error(1)
}

func (m *MessageGatewayMock) SendJoinMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(models.ChatMessage), args.Error(1)
}

func (m *MessageGatewayMock) SendLeaveMessage(ctx context.Context, roomID, userID int) (models.ChatMessage, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(models.ChatMessage), args.Error(1)
}

type TokenRegistryMock struct {
	mock.Mock
}

func (m *TokenRegistryMock) RegisterToken(ctx context.Context, userID int, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *TokenRegistryMock) UnregisterToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *TokenRegistryMock) UnregisterAllForUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type UserNotifierMock struct {
	mock.Mock
}

func (m *UserNotifierMock) NotifyUser(ctx context.Context, userID int, title, body string) (notify.DeliveryReport, error) {
	args := m.Called(ctx, userID, title, body)
	return args.Get(0).(notify.DeliveryReport), args.Error(1)
}

type LiveBroadcasterMock struct {
	mock.Mock
}

func (m *LiveBroadcasterMock) BroadcastRoomMessage(msg models.ChatMessage) {
	m.Called(msg)
}

func (m *LiveBroadcasterMock) ViewerIDs(roomID int) map[int]bool {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[int]bool)
}
