package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediaforge/api/internal/handler"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/service"
	"github.com/mediaforge/api/internal/store"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func setupApp(t *testing.T) (*fiber.App, *store.GormStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))

	validate := validator.New()
	generateHandler := handler.NewGenerateHandler(service.NewGenerateService(s, nopEnqueuer{}), validate)
	batchHandler := handler.NewBatchHandler(service.NewBatchService(s, nopEnqueuer{}), validate)

	app := fiber.New()
	fakeAuth := func(c *fiber.Ctx) error {
		c.Locals("userId", "user-1")
		return c.Next()
	}
	api := app.Group("/api", fakeAuth)
	api.Post("/generate", generateHandler.Start)
	api.Get("/generate/:requestId", generateHandler.Status)
	api.Post("/batch", batchHandler.Start)
	api.Get("/batch/:batchId", batchHandler.Status)
	api.Post("/batch/:batchId/pause", batchHandler.Pause)
	api.Post("/batch/:batchId/cancel", batchHandler.Cancel)
	return app, s
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestGenerateEndpointAcceptsJob(t *testing.T) {
	app, s := setupApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/generate", fiber.Map{
		"params": fiber.Map{"prompt": "a cat"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	requestID, _ := body["requestId"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, "pending", body["status"])

	stored, err := s.GetRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.OwnerID)

	resp, body = doJSON(t, app, http.MethodGet, "/api/generate/"+requestID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
}

func TestGenerateEndpointValidation(t *testing.T) {
	app, _ := setupApp(t)

	// prompt is required
	resp, body := doJSON(t, app, http.MethodPost, "/api/generate", fiber.Map{
		"params": fiber.Map{"width": 512},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	require.NotNil(t, errObj)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestGenerateEndpointNotFound(t *testing.T) {
	app, _ := setupApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/generate/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatchEndpointLifecycle(t *testing.T) {
	app, s := setupApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{
		"params":     fiber.Map{"prompt": "a cat"},
		"totalCount": 3,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	batchID, _ := body["batchId"].(string)
	require.NotEmpty(t, batchID)

	// pause before the worker starts is a validation error, not a 500
	resp, _ = doJSON(t, app, http.MethodPost, "/api/batch/"+batchID+"/pause", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err := s.TransitionBatch(context.Background(), batchID, model.BatchStatusPending, model.BatchStatusProcessing)
	require.NoError(t, err)

	resp, body = doJSON(t, app, http.MethodPost, "/api/batch/"+batchID+"/pause", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["status"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/batch/"+batchID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	// a cancelled batch rejects further control calls
	resp, _ = doJSON(t, app, http.MethodPost, "/api/batch/"+batchID+"/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchEndpointRejectsBadCount(t *testing.T) {
	app, _ := setupApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{
		"params":     fiber.Map{"prompt": "a cat"},
		"totalCount": 0,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/batch", fiber.Map{
		"params":     fiber.Map{"prompt": "a cat"},
		"totalCount": 500,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
