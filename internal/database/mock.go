package database

import (
	"github.com/stretchr/testify/mock"
)

type MockTripChatRepository struct {
	mock.Mock
}

func (m *MockTripChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTripChatRepository) GetChatRoomByExternalId(externalId string) (ChatRoom, error) {
	args := m.Called(externalId)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockTripChatRepository) GetParticipant(chatRoomId, userId int) (Participant, error) {
	args := m.Called(chatRoomId, userId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockTripChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockTripChatRepository) ListMessages(chatRoomId, since, before, limit int) ([]Message, error) {
	args := m.Called(chatRoomId, since, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockTripChatRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockTripChatRepository) GetNotification(id int) (Notification, error) {
	args := m.Called(id)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockTripChatRepository) ListNotifications(userId int, unreadOnly bool) ([]Notification, error) {
	args := m.Called(userId, unreadOnly)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockTripChatRepository) SetNotificationRead(id int, read bool) (Notification, error) {
	args := m.Called(id, read)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockTripChatRepository) MarkAllNotificationsRead(userId int) (int64, error) {
	args := m.Called(userId)
	return args.Get(0).(int64), args.Error(1)
}
