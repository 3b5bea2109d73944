package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/internal/database"
	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/internal/services"
	"github.com/fileshare/backend/internal/storage"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fiber.App
	db        *gorm.DB
	fileStore storage.Backend
	logoStore storage.Backend
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	fileStore, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("failed creating file store: %v", err)
	}
	logoStore, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("failed creating logo store: %v", err)
	}

	accessService := services.NewAccessService(db)

	uploadCfg := config.UploadConfig{
		MaxSize:           16 * 1024 * 1024,
		AllowedExtensions: []string{"png", "jpg", "jpeg", "gif", "pdf", "doc", "docx", "txt", "zip"},
	}

	authHandler := NewAuthHandler(db)
	filesHandler := NewFilesHandler(db, fileStore, accessService, uploadCfg)
	bundlesHandler := NewBundlesHandler(db, fileStore, accessService)
	settingsHandler := NewSettingsHandler(db, logoStore)
	statsHandler := NewStatsHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: int(uploadCfg.MaxSize)})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	fileRoutes := api.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.UploadFile)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/:id", filesHandler.Get)
	fileRoutes.Put("/:id/visibility", filesHandler.ToggleVisibility)
	fileRoutes.Put("/:id", filesHandler.Rename)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	bundleRoutes := api.Group("/bundles", authMiddleware.RequireAuth)
	bundleRoutes.Post("/", bundlesHandler.Create)
	bundleRoutes.Get("/", bundlesHandler.List)
	bundleRoutes.Get("/:id", bundlesHandler.Get)
	bundleRoutes.Put("/:id/visibility", bundlesHandler.ToggleVisibility)
	bundleRoutes.Put("/:id", bundlesHandler.Update)
	bundleRoutes.Delete("/:id", bundlesHandler.Delete)

	sharedRoutes := api.Group("/shared", authMiddleware.OptionalAuth)
	sharedRoutes.Get("/files/:token", filesHandler.SharedGet)
	sharedRoutes.Get("/files/:token/view", filesHandler.SharedView)
	sharedRoutes.Get("/files/:token/download", filesHandler.SharedDownload)
	sharedRoutes.Get("/bundles/:token", bundlesHandler.SharedGet)
	sharedRoutes.Get("/bundles/:token/download", bundlesHandler.SharedDownload)

	api.Get("/settings/logo", settingsHandler.GetLogo)
	api.Post("/settings/logo", authMiddleware.RequireAuth, settingsHandler.UploadLogo)
	app.Get("/logo/:filename", settingsHandler.ServeLogo)

	api.Get("/stats", authMiddleware.RequireAuth, statsHandler.Me)

	return &testEnv{app: app, db: db, fileStore: fileStore, logoStore: logoStore}
}

func createTestUser(t *testing.T, db *gorm.DB, username, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        username + "@test.com",
		PasswordHash: hash,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// buildUploadBody assembles a multipart upload request body. An empty
// transactionNumber leaves the field out entirely.
func buildUploadBody(t *testing.T, filename, transactionNumber, contents string, public bool) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := part.Write([]byte(contents)); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}
	if transactionNumber != "" {
		if err := writer.WriteField("transactionNumber", transactionNumber); err != nil {
			t.Fatalf("failed writing transactionNumber field: %v", err)
		}
	}
	if public {
		if err := writer.WriteField("isPublic", "true"); err != nil {
			t.Fatalf("failed writing isPublic field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

// uploadTestFile pushes a multipart upload through the real route and
// returns the created file's JSON.
func uploadTestFile(t *testing.T, env *testEnv, token, filename, transactionNumber, contents string, public bool) map[string]any {
	t.Helper()

	body, contentType := buildUploadBody(t, filename, transactionNumber, contents, public)
	headers := authHeaders(token)
	headers["Content-Type"] = contentType

	resp := performRequest(t, env.app, http.MethodPost, "/api/files/upload", body, headers)
	payload := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)

	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected file object in upload response, got %+v", payload)
	}
	return data
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}
	return raw
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	raw := readBody(t, resp)

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

// fileDownloadCount reads the persisted counter straight from the database.
func fileDownloadCount(t *testing.T, db *gorm.DB, fileID string) int64 {
	t.Helper()
	var file models.File
	if err := db.First(&file, "id = ?", fileID).Error; err != nil {
		t.Fatalf("failed loading file %s: %v", fileID, err)
	}
	return file.DownloadCount
}
