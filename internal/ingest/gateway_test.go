package ingest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tripchat-service/internal/ingest"
	"tripchat-service/internal/mocks"
	"tripchat-service/internal/models"
	"tripchat-service/internal/repositories"
)

func TestSubmitTextStoresThenPublishes(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	publisher := new(mocks.BrokerPublisherMock)
	g := ingest.NewGateway(members, store, publisher, new(mocks.BlobStoreMock))

	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Once()
	stored := models.NewTextMessage(42, 1, "minsu", "hello")
	store.On("Append", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.RoomID == 42 && m.Kind == models.KindText && m.Content == "hello" && !m.Timestamp.IsZero()
	})).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, stored).Return(nil).Once()

	got, err := g.Submit(context.Background(), ingest.SubmitRequest{
		RoomID:     42,
		SenderID:   1,
		SenderName: "minsu",
		Kind:       models.KindText,
		Text:       "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, stored, got)
	members.AssertExpectations(t)
	store.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSubmitUnknownRoom(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	g := ingest.NewGateway(members, new(mocks.MessageRepoMock), new(mocks.BrokerPublisherMock), new(mocks.BlobStoreMock))

	members.On("RoomExists", mock.Anything, 99).Return(false, nil).Once()

	_, err := g.Submit(context.Background(), ingest.SubmitRequest{RoomID: 99, SenderID: 1, Kind: models.KindText, Text: "hi"})

	require.ErrorIs(t, err, ingest.ErrRoomNotFound)
	members.AssertExpectations(t)
}

func TestSubmitRejectsSystemKinds(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	g := ingest.NewGateway(members, new(mocks.MessageRepoMock), new(mocks.BrokerPublisherMock), new(mocks.BlobStoreMock))

	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Once()

	_, err := g.Submit(context.Background(), ingest.SubmitRequest{RoomID: 42, SenderID: 1, Kind: models.KindJoin})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ingest.ErrRoomNotFound)
}

func TestSubmitImageUploadFailureAborts(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	blobs := new(mocks.BlobStoreMock)
	g := ingest.NewGateway(members, store, new(mocks.BrokerPublisherMock), blobs)

	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Once()
	blobs.On("Upload", mock.Anything, mock.Anything, int64(3), "image/png").Return("", assert.AnError).Once()

	_, err := g.Submit(context.Background(), ingest.SubmitRequest{
		RoomID:           42,
		SenderID:         1,
		Kind:             models.KindImage,
		Image:            []byte("png"),
		ImageContentType: "image/png",
	})

	var uploadErr *ingest.AssetUploadError
	require.ErrorAs(t, err, &uploadErr)
	store.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	blobs.AssertExpectations(t)
}

func TestSubmitImageSuccess(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	publisher := new(mocks.BrokerPublisherMock)
	blobs := new(mocks.BlobStoreMock)
	g := ingest.NewGateway(members, store, publisher, blobs)

	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Once()
	blobs.On("Upload", mock.Anything, mock.Anything, int64(3), "image/png").Return("https://cdn/chat-images/a.png", nil).Once()
	stored := models.NewImageMessage(42, 1, "minsu", "https://cdn/chat-images/a.png")
	store.On("Append", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.Kind == models.KindImage && m.ImageURL == "https://cdn/chat-images/a.png"
	})).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, stored).Return(nil).Once()

	got, err := g.Submit(context.Background(), ingest.SubmitRequest{
		RoomID:           42,
		SenderID:         1,
		SenderName:       "minsu",
		Kind:             models.KindImage,
		Image:            []byte("png"),
		ImageContentType: "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/chat-images/a.png", got.ImageURL)
	publisher.AssertExpectations(t)
}

func TestSubmitDegradedAfterPublishRetries(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	publisher := new(mocks.BrokerPublisherMock)
	g := ingest.NewGateway(members, store, publisher, new(mocks.BlobStoreMock))

	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Once()
	stored := models.NewTextMessage(42, 1, "minsu", "hello")
	store.On("Append", mock.Anything, mock.Anything).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, stored).Return(assert.AnError).Times(3)

	got, err := g.Submit(context.Background(), ingest.SubmitRequest{
		RoomID:     42,
		SenderID:   1,
		SenderName: "minsu",
		Kind:       models.KindText,
		Text:       "hello",
	})

	var degraded *ingest.DeliveryDegradedError
	require.ErrorAs(t, err, &degraded)
	assert.Equal(t, stored, degraded.Message)
	assert.Equal(t, stored, got)
	publisher.AssertExpectations(t)
}

func TestSubmitSequenceAppendsBeforePublishing(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	publisher := new(mocks.BrokerPublisherMock)
	g := ingest.NewGateway(members, store, publisher, new(mocks.BlobStoreMock))

	contents := []string{"first", "second", "third"}

	var steps []string
	members.On("RoomExists", mock.Anything, 42).Return(true, nil).Times(len(contents))
	for _, content := range contents {
		content := content
		stored := models.NewTextMessage(42, 1, "minsu", content)
		store.On("Append", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
			return m.Content == content
		})).Run(func(args mock.Arguments) {
			steps = append(steps, "append:"+content)
		}).Return(stored, nil).Once()
	}
	publisher.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		steps = append(steps, "publish:"+args.Get(1).(models.ChatMessage).Content)
	}).Return(nil).Times(len(contents))

	for _, content := range contents {
		_, err := g.Submit(context.Background(), ingest.SubmitRequest{
			RoomID:     42,
			SenderID:   1,
			SenderName: "minsu",
			Kind:       models.KindText,
			Text:       content,
		})
		require.NoError(t, err)
	}

	// A message reaches the broker only after it is durable, and submissions
	// leave the gateway in the order they arrived.
	assert.Equal(t, []string{
		"append:first", "publish:first",
		"append:second", "publish:second",
		"append:third", "publish:third",
	}, steps)
	store.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSendJoinMessageResolvesName(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	store := new(mocks.MessageRepoMock)
	publisher := new(mocks.BrokerPublisherMock)
	g := ingest.NewGateway(members, store, publisher, new(mocks.BlobStoreMock))

	members.On("MemberName", mock.Anything, 42, 7).Return("jiyeon", nil).Once()
	stored := models.NewJoinMessage(42, 7, "jiyeon")
	store.On("Append", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.Kind == models.KindJoin && m.Content == "jiyeon님이 채팅방에 입장했습니다."
	})).Return(stored, nil).Once()
	publisher.On("Publish", mock.Anything, stored).Return(nil).Once()

	got, err := g.SendJoinMessage(context.Background(), 42, 7)

	require.NoError(t, err)
	assert.Equal(t, models.KindJoin, got.Kind)
	members.AssertExpectations(t)
}

func TestSendLeaveMessageUnknownRoom(t *testing.T) {
	members := new(mocks.MembershipRepoMock)
	g := ingest.NewGateway(members, new(mocks.MessageRepoMock), new(mocks.BrokerPublisherMock), new(mocks.BlobStoreMock))

	members.On("MemberName", mock.Anything, 42, 7).Return("", repositories.ErrRoomNotFound).Once()

	_, err := g.SendLeaveMessage(context.Background(), 42, 7)

	require.ErrorIs(t, err, ingest.ErrRoomNotFound)
}
