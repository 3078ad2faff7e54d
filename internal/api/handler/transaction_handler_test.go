package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/freelancer-expense-classifier/internal/api/middleware"
	"github.com/freelancer-expense-classifier/internal/config"
	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/domain/user"
	"github.com/freelancer-expense-classifier/internal/ingest"
	"github.com/freelancer-expense-classifier/internal/ingest/processor"
)

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) ProcessUpload(ctx context.Context, u *user.User, filename string, data []byte) (*processor.Summary, error) {
	args := m.Called(ctx, u, filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Summary), args.Error(1)
}

func (m *MockTransactionService) CancelProcessing(userID uuid.UUID) bool {
	return m.Called(userID).Bool(0)
}

func (m *MockTransactionService) Reclassify(ctx context.Context, u *user.User) (*processor.Summary, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Summary), args.Error(1)
}

func (m *MockTransactionService) List(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter, page, perPage int) ([]*transaction.Transaction, int64, error) {
	args := m.Called(ctx, userID, filter, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*transaction.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockTransactionService) Get(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) Update(ctx context.Context, userID, id uuid.UUID, fields transaction.UpdateFields) (*transaction.Transaction, error) {
	args := m.Called(ctx, userID, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockTransactionService) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionService) Statistics(ctx context.Context, userID uuid.UUID) (*transaction.Statistics, []transaction.MonthlyTotal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*transaction.Statistics), args.Get(1).([]transaction.MonthlyTotal), args.Error(2)
}

func (m *MockTransactionService) UploadHistory(ctx context.Context, userID uuid.UUID, page, perPage int) ([]*upload.Record, error) {
	args := m.Called(ctx, userID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*upload.Record), args.Error(1)
}

var testUploadCfg = config.UploadConfig{
	MaxFileSize:       1024,
	AllowedExtensions: []string{".csv", ".pdf"},
	DefaultCurrency:   "USD",
	ResponseSample:    100,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// setupTransactionRouter wires the handler behind a middleware that injects
// the authenticated user, the way the real router does after Auth
func setupTransactionRouter(handler *TransactionHandler, u *user.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u != nil {
			c.Set(middleware.UserKey, u)
		}
		c.Next()
	})
	r.POST("/transactions/upload", handler.Upload)
	r.POST("/transactions/cancel-processing", handler.Cancel)
	r.POST("/transactions/reclassify", handler.Reclassify)
	r.GET("/transactions", handler.List)
	r.GET("/transactions/statistics", handler.Statistics)
	r.GET("/transactions/uploads", handler.UploadHistory)
	r.GET("/transactions/:id", handler.Get)
	r.PUT("/transactions/:id", handler.Update)
	r.DELETE("/transactions/:id", handler.Delete)
	r.DELETE("/transactions", handler.DeleteAll)
	return r
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestTransactionHandler_Upload(t *testing.T) {
	u := &user.User{ID: uuid.New(), Email: "dev@example.com"}
	csvContent := []byte("date,description,amount\n2024-03-01,COFFEE,-4.50\n")

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		summary := &processor.Summary{
			BatchID:        uuid.New(),
			Status:         upload.StatusCompleted,
			ProcessedCount: 1,
		}
		mockService.On("ProcessUpload", mock.Anything, u, "statement.csv", csvContent).Return(summary, nil)

		body, contentType := multipartUpload(t, "statement.csv", csvContent)
		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"processed_count":1`)
		mockService.AssertExpectations(t)
	})

	t.Run("CancelledRunReports499", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		summary := &processor.Summary{Status: upload.StatusCancelled, ProcessedCount: 3}
		mockService.On("ProcessUpload", mock.Anything, u, "statement.csv", csvContent).Return(summary, nil)

		body, contentType := multipartUpload(t, "statement.csv", csvContent)
		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, StatusClientClosedRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), string(upload.StatusCancelled))
		mockService.AssertExpectations(t)
	})

	t.Run("MissingFileField", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", bytes.NewBufferString("not multipart"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		body, contentType := multipartUpload(t, "statement.xlsx", csvContent)
		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Unsupported file type")
		mockService.AssertExpectations(t)
	})

	t.Run("OversizedFile", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		big := bytes.Repeat([]byte("x"), int(testUploadCfg.MaxFileSize)+1)
		body, contentType := multipartUpload(t, "statement.csv", big)
		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("UnparseableFile", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		mockService.On("ProcessUpload", mock.Anything, u, "statement.csv", csvContent).
			Return(nil, ingest.ValidationError{Reason: "missing required column: amount"})

		body, contentType := multipartUpload(t, "statement.csv", csvContent)
		req, _ := http.NewRequest(http.MethodPost, "/transactions/upload", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "missing required column")
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_Cancel(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	t.Run("ActiveRun", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		mockService.On("CancelProcessing", u.ID).Return(true)

		req, _ := http.NewRequest(http.MethodPost, "/transactions/cancel-processing", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "cancellation_requested")
		mockService.AssertExpectations(t)
	})

	t.Run("NoActiveRun", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		mockService.On("CancelProcessing", u.ID).Return(false)

		req, _ := http.NewRequest(http.MethodPost, "/transactions/cancel-processing", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "No processing run in progress")
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_Get(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		id := uuid.New()
		txn := &transaction.Transaction{ID: id, UserID: u.ID, Description: "ADOBE"}
		mockService.On("Get", mock.Anything, u.ID, id).Return(txn, nil)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/"+id.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "ADOBE")
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidID", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodGet, "/transactions/not-a-uuid", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		id := uuid.New()
		mockService.On("Get", mock.Anything, u.ID, id).Return(nil, transaction.ErrTransactionNotFound{ID: id})

		req, _ := http.NewRequest(http.MethodGet, "/transactions/"+id.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_Update(t *testing.T) {
	u := &user.User{ID: uuid.New()}
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		updated := &transaction.Transaction{ID: id, UserID: u.ID, ManuallyOverridden: true}
		mockService.On("Update", mock.Anything, u.ID, id, mock.MatchedBy(func(fields transaction.UpdateFields) bool {
			return fields.IsBusinessExpense != nil && *fields.IsBusinessExpense
		})).Return(updated, nil)

		body := bytes.NewBufferString(`{"is_business_expense": true}`)
		req, _ := http.NewRequest(http.MethodPut, "/transactions/"+id.String(), body)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"manually_overridden":true`)
		mockService.AssertExpectations(t)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodPut, "/transactions/"+id.String(), bytes.NewBufferString(`{"invalid`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NoFieldsToUpdate", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodPut, "/transactions/"+id.String(), bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "no fields to update")
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidDate", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodPut, "/transactions/"+id.String(), bytes.NewBufferString(`{"date": "yesterday"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "date must be YYYY-MM-DD")
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_Delete(t *testing.T) {
	u := &user.User{ID: uuid.New()}
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		mockService.On("Delete", mock.Anything, u.ID, id).Return(nil)

		req, _ := http.NewRequest(http.MethodDelete, "/transactions/"+id.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		mockService.On("Delete", mock.Anything, u.ID, id).Return(transaction.ErrTransactionNotFound{ID: id})

		req, _ := http.NewRequest(http.MethodDelete, "/transactions/"+id.String(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_DeleteAll(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	mockService := new(MockTransactionService)
	handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
	router := setupTransactionRouter(handler, u)

	mockService.On("DeleteAll", mock.Anything, u.ID).Return(int64(12), nil)

	req, _ := http.NewRequest(http.MethodDelete, "/transactions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"deleted_count":12`)
	mockService.AssertExpectations(t)
}

func TestTransactionHandler_List(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	t.Run("PaginatedResponse", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		txns := []*transaction.Transaction{{ID: uuid.New(), UserID: u.ID, Description: "ADOBE"}}
		mockService.On("List", mock.Anything, u.ID, mock.MatchedBy(func(f transaction.ListFilter) bool {
			return f.IsBusiness != nil && *f.IsBusiness && f.Category == "software"
		}), 2, 10).Return(txns, int64(25), nil)

		req, _ := http.NewRequest(http.MethodGet, "/transactions?page=2&per_page=10&is_business=true&category=software", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, 10, resp.Meta.PerPage)
		assert.Equal(t, 25, resp.Meta.TotalItems)
		assert.Equal(t, 3, resp.Meta.TotalPages)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidDateFilter", func(t *testing.T) {
		mockService := new(MockTransactionService)
		handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
		router := setupTransactionRouter(handler, u)

		req, _ := http.NewRequest(http.MethodGet, "/transactions?start_date=notadate", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "start_date must be YYYY-MM-DD")
		mockService.AssertExpectations(t)
	})
}

func TestTransactionHandler_Statistics(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	mockService := new(MockTransactionService)
	handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
	router := setupTransactionRouter(handler, u)

	stats := &transaction.Statistics{TotalTransactions: 10, BusinessTransactions: 4, BusinessPercentage: 40}
	monthly := []transaction.MonthlyTotal{{Month: "2024-03", Count: 10}}
	mockService.On("Statistics", mock.Anything, u.ID).Return(stats, monthly, nil)

	req, _ := http.NewRequest(http.MethodGet, "/transactions/statistics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total_transactions":10`)
	assert.Contains(t, rr.Body.String(), `"2024-03"`)
	mockService.AssertExpectations(t)
}

func TestTransactionHandler_UploadHistory(t *testing.T) {
	u := &user.User{ID: uuid.New()}

	mockService := new(MockTransactionService)
	handler := NewTransactionHandler(testLogger(), mockService, testUploadCfg)
	router := setupTransactionRouter(handler, u)

	records := []*upload.Record{{BatchID: uuid.New(), UserID: u.ID, Filename: "march.csv", Status: upload.StatusCompleted}}
	mockService.On("UploadHistory", mock.Anything, u.ID, 1, 10).Return(records, nil)

	req, _ := http.NewRequest(http.MethodGet, "/transactions/uploads", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "march.csv")
	mockService.AssertExpectations(t)
}
