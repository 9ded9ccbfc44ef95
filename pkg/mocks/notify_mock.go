package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, kind, title, message string) error {
	args := m.Called(ctx, kind, title, message)

	return args.Error(0)
}

// MockEmailSender is a mock implementation of notify.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)

	return args.Error(0)
}

// MockTaskCreator is a mock implementation of notify.TaskCreator.
type MockTaskCreator struct {
	mock.Mock
}

func (m *MockTaskCreator) CreateTask(ctx context.Context, title, assignedTo string, details map[string]any) error {
	args := m.Called(ctx, title, assignedTo, details)

	return args.Error(0)
}
