package emaillogs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/internal/models"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	args := m.Called(ctx, eventID)
	list, _ := args.Get(0).([]*models.EmailLog)
	return list, args.Error(1)
}

func serve(t *testing.T, lister Lister, role models.Role, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(lister, nil)
	r := gin.New()
	r.GET("/events/:id/emails", func(c *gin.Context) {
		c.Set(middleware.ContextCaller, auth.Caller{UserID: uuid.New(), Role: role})
		h.ListByEvent(c)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+eventID+"/emails", nil))
	return w
}

func TestListByEvent(t *testing.T) {
	eventID := uuid.New()
	lister := new(mockLister)
	lister.On("ListByEvent", mock.Anything, eventID).Return([]*models.EmailLog{
		{ID: uuid.New(), EventID: &eventID, EmailType: models.EmailTypeReminder1h, Status: models.EmailLogStatusSent},
	}, nil)

	w := serve(t, lister, models.RoleAdmin, eventID.String())
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.EmailLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, models.EmailTypeReminder1h, body.Data[0].EmailType)
	lister.AssertExpectations(t)
}

func TestListByEvent_Errors(t *testing.T) {
	lister := new(mockLister)
	assert.Equal(t, http.StatusForbidden, serve(t, lister, models.RoleBusiness, uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, lister, models.RoleAdmin, "nope").Code)

	eventID := uuid.New()
	lister.On("ListByEvent", mock.Anything, eventID).Return(nil, errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, serve(t, lister, models.RoleAdmin, eventID.String()).Code)
	lister.AssertNotCalled(t, "ListByEvent", mock.Anything, uuid.Nil)
}
