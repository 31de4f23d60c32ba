package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/userdesk/pkg/errors"
)

// MockProfileService is a mock implementation of ProfileService for testing
type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) GetUser(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockProfileService) UpdateUser(ctx context.Context, id string, changes map[string]interface{}) (*User, error) {
	args := m.Called(ctx, id, changes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func ann() *User {
	return &User{ID: "2", Name: "Ann", Email: "ann@example.com", Bio: "hi", Interests: []string{"go"}}
}

func TestProfileEditorLoadsOnce(t *testing.T) {
	ctx := context.Background()
	svc := new(MockProfileService)
	svc.On("GetUser", mock.Anything, "2").Return(ann(), nil).Twice()

	e := NewProfileEditor(svc, "2")
	assert.False(t, e.Loaded())
	require.NoError(t, e.Load(ctx))
	require.NoError(t, e.Load(ctx))
	require.NoError(t, e.Load(ctx))
	assert.True(t, e.Loaded())
	svc.AssertNumberOfCalls(t, "GetUser", 1)

	require.NoError(t, e.SetField("name", "Annie"))
	require.NoError(t, e.Reload(ctx))
	assert.False(t, e.Dirty())
	svc.AssertNumberOfCalls(t, "GetUser", 2)
}

func TestProfileEditorLoadFailure(t *testing.T) {
	svc := new(MockProfileService)
	svc.On("GetUser", mock.Anything, "2").Return(nil, errors.NewNotFoundError("user"))

	e := NewProfileEditor(svc, "2")
	err := e.Load(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	assert.False(t, e.Loaded())

	assert.Error(t, e.SetField("name", "x"))
	_, err = e.Submit(context.Background())
	assert.Error(t, err)
	_, err = e.Draft()
	assert.Error(t, err)
}

func TestProfileEditorEditing(t *testing.T) {
	ctx := context.Background()
	svc := new(MockProfileService)
	svc.On("GetUser", mock.Anything, "2").Return(ann(), nil)
	e := NewProfileEditor(svc, "2")
	require.NoError(t, e.Load(ctx))

	t.Run("unknown fields are rejected", func(t *testing.T) {
		err := e.SetField("role", "admin")
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
	})

	t.Run("values are sanitized on write", func(t *testing.T) {
		require.NoError(t, e.SetField("bio", "<script>steal()</script>I *garden*"))
		draft, err := e.Draft()
		require.NoError(t, err)
		assert.Equal(t, "I *garden*", draft.Bio)

		preview, err := e.BioPreview()
		require.NoError(t, err)
		assert.Contains(t, preview, "<em>garden</em>")
	})

	t.Run("editing a field clears its error", func(t *testing.T) {
		require.NoError(t, e.SetField("email", "broken"))
		require.NoError(t, e.SetField("name", "A"))
		problems := e.Validate()
		assert.Equal(t, "Invalid email format", problems["email"])
		assert.Contains(t, e.Errors(), "name")

		require.NoError(t, e.SetField("email", "ann@example.org"))
		assert.NotContains(t, e.Errors(), "email")
		assert.Contains(t, e.Errors(), "name")
	})

	t.Run("interests", func(t *testing.T) {
		require.NoError(t, e.SetInterests([]string{" go ", "", "<b>rust</b>", "go"}))
		draft, err := e.Draft()
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "rust"}, draft.Interests)
	})
}

func TestProfileEditorSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("sends only changed fields", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("GetUser", mock.Anything, "2").Return(ann(), nil)
		updated := ann()
		updated.Bio = "new bio"
		svc.On("UpdateUser", mock.Anything, "2", map[string]interface{}{"bio": "new bio"}).Return(updated, nil).Once()

		e := NewProfileEditor(svc, "2")
		require.NoError(t, e.Load(ctx))
		require.NoError(t, e.SetField("bio", "new bio"))
		require.NoError(t, e.SetField("name", "Ann"))
		assert.Equal(t, map[string]interface{}{"bio": "new bio"}, e.Changes())

		user, err := e.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new bio", user.Bio)
		assert.False(t, e.Dirty())
		svc.AssertExpectations(t)
	})

	t.Run("no changes sends nothing", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("GetUser", mock.Anything, "2").Return(ann(), nil)
		e := NewProfileEditor(svc, "2")
		require.NoError(t, e.Load(ctx))

		user, err := e.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Ann", user.Name)
		svc.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid draft is not sent", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("GetUser", mock.Anything, "2").Return(ann(), nil)
		e := NewProfileEditor(svc, "2")
		require.NoError(t, e.Load(ctx))
		require.NoError(t, e.SetField("website", "javascript:alert(1)"))

		_, err := e.Submit(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		assert.Equal(t, "Invalid URL format", e.Errors()["website"])
		svc.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed update keeps the draft", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("GetUser", mock.Anything, "2").Return(ann(), nil)
		svc.On("UpdateUser", mock.Anything, "2", mock.Anything).Return(nil, errors.NewConflictError("stale"))
		e := NewProfileEditor(svc, "2")
		require.NoError(t, e.Load(ctx))
		require.NoError(t, e.SetField("name", "Anne"))

		_, err := e.Submit(ctx)
		assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
		assert.True(t, e.Dirty())
	})
}
