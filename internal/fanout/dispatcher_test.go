package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tripchat-service/internal/mocks"
	"tripchat-service/internal/models"
	"tripchat-service/internal/notify"
)

func encodedMessage(t *testing.T, msg models.ChatMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func testMessage() models.ChatMessage {
	msg := models.NewTextMessage(5, 1, "minsu", "hello")
	msg.Timestamp = time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	return msg
}

func TestHandleMessageBroadcastsAndNotifiesOffline(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	members := new(mocks.MembershipRepoMock)
	notifier := new(mocks.UserNotifierMock)
	d := NewDispatcher(hub, members, notifier)

	msg := testMessage()

	hub.On("BroadcastRoomMessage", mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.RoomID == 5 && m.Content == "hello"
	})).Once()
	hub.On("ViewerIDs", 5).Return(map[int]bool{2: true}).Once()
	members.On("MembersOf", mock.Anything, 5).Return([]models.RoomMember{
		{RoomID: 5, UserID: 1, UserName: "minsu"},
		{RoomID: 5, UserID: 2, UserName: "jiyeon"},
		{RoomID: 5, UserID: 3, UserName: "hyunwoo"},
	}, nil).Once()
	members.On("GetRoom", mock.Anything, 5).Return(models.Room{ID: 5, Title: "부산 여행"}, nil).Once()

	// Sender (1) and live viewer (2) are skipped; only user 3 gets a push.
	notifier.On("NotifyUser", mock.Anything, 3, "부산 여행", "minsu: hello").
		Return(notify.DeliveryReport{Attempted: 1, Delivered: 1}, nil).Once()

	err := d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, msg))

	require.NoError(t, err)
	hub.AssertExpectations(t)
	members.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestHandleMessageMalformedPayloadDropped(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	d := NewDispatcher(hub, new(mocks.MembershipRepoMock), new(mocks.UserNotifierMock))

	err := d.HandleMessage(context.Background(), []byte("5"), []byte("{not json"))

	require.NoError(t, err)
	hub.AssertNotCalled(t, "BroadcastRoomMessage", mock.Anything)
}

func TestHandleMessageInvalidMessageDropped(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	d := NewDispatcher(hub, new(mocks.MembershipRepoMock), new(mocks.UserNotifierMock))

	// TEXT message with no content fails validation.
	invalid := models.ChatMessage{RoomID: 5, SenderID: 1, Kind: models.KindText}

	err := d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, invalid))

	require.NoError(t, err)
	hub.AssertNotCalled(t, "BroadcastRoomMessage", mock.Anything)
}

func TestHandleMessageMembershipErrorRequestsRedelivery(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	members := new(mocks.MembershipRepoMock)
	d := NewDispatcher(hub, members, new(mocks.UserNotifierMock))

	msg := testMessage()

	hub.On("BroadcastRoomMessage", mock.Anything).Once()
	members.On("MembersOf", mock.Anything, 5).Return(nil, assert.AnError).Once()

	err := d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, msg))

	require.Error(t, err)
	members.AssertExpectations(t)
}

func TestHandleMessageNotifyFailureIsIsolated(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	members := new(mocks.MembershipRepoMock)
	notifier := new(mocks.UserNotifierMock)
	d := NewDispatcher(hub, members, notifier)

	msg := testMessage()

	hub.On("BroadcastRoomMessage", mock.Anything).Once()
	hub.On("ViewerIDs", 5).Return(map[int]bool{}).Once()
	members.On("MembersOf", mock.Anything, 5).Return([]models.RoomMember{
		{RoomID: 5, UserID: 2, UserName: "jiyeon"},
		{RoomID: 5, UserID: 3, UserName: "hyunwoo"},
	}, nil).Once()
	members.On("GetRoom", mock.Anything, 5).Return(models.Room{ID: 5, Title: "부산 여행"}, nil).Once()

	notifier.On("NotifyUser", mock.Anything, 2, "부산 여행", "minsu: hello").
		Return(notify.DeliveryReport{}, assert.AnError).Once()
	notifier.On("NotifyUser", mock.Anything, 3, "부산 여행", "minsu: hello").
		Return(notify.DeliveryReport{Attempted: 1, Delivered: 1}, nil).Once()

	err := d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, msg))

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestHandleMessageBroadcastsInArrivalOrder(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	members := new(mocks.MembershipRepoMock)
	notifier := new(mocks.UserNotifierMock)
	d := NewDispatcher(hub, members, notifier)

	var broadcasted []string
	hub.On("BroadcastRoomMessage", mock.Anything).Run(func(args mock.Arguments) {
		broadcasted = append(broadcasted, args.Get(0).(models.ChatMessage).Content)
	}).Times(3)
	hub.On("ViewerIDs", 5).Return(map[int]bool{}).Times(3)
	members.On("MembersOf", mock.Anything, 5).Return([]models.RoomMember{}, nil).Times(3)
	members.On("GetRoom", mock.Anything, 5).Return(models.Room{ID: 5, Title: "부산 여행"}, nil).Times(3)

	for _, content := range []string{"first", "second", "third"} {
		msg := models.NewTextMessage(5, 1, "minsu", content)
		require.NoError(t, d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, msg)))
	}

	assert.Equal(t, []string{"first", "second", "third"}, broadcasted)
}

func TestHandleMessageImageNotificationBody(t *testing.T) {
	hub := new(mocks.LiveBroadcasterMock)
	members := new(mocks.MembershipRepoMock)
	notifier := new(mocks.UserNotifierMock)
	d := NewDispatcher(hub, members, notifier)

	msg := models.NewImageMessage(5, 1, "minsu", "https://cdn/chat-images/a.png")
	msg.Timestamp = time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)

	hub.On("BroadcastRoomMessage", mock.Anything).Once()
	hub.On("ViewerIDs", 5).Return(map[int]bool(nil)).Once()
	members.On("MembersOf", mock.Anything, 5).Return([]models.RoomMember{
		{RoomID: 5, UserID: 2, UserName: "jiyeon"},
	}, nil).Once()
	members.On("GetRoom", mock.Anything, 5).Return(models.Room{ID: 5, Title: "부산 여행"}, nil).Once()

	notifier.On("NotifyUser", mock.Anything, 2, "부산 여행", "minsu님이 사진을 보냈습니다.").
		Return(notify.DeliveryReport{Attempted: 1, Delivered: 1}, nil).Once()

	err := d.HandleMessage(context.Background(), []byte("5"), encodedMessage(t, msg))

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}
