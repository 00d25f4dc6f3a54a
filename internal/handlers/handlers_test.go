package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
	"github.com/flotob/curia-sub002/internal/models"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// openTestDB connects to the test database or skips the calling suite.
func openTestDB(t *testing.T) *gorm.DB {
	host := getEnvOrDefault("POSTGRES_HOST", "localhost")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "postgres")
	password := getEnvOrDefault("POSTGRES_PASSWORD", "")
	dbname := getEnvOrDefault("POSTGRES_DB", "curia_test")

	testDSN := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", host, port, user, dbname)
	if password != "" {
		testDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
	}

	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping handler tests: database not available (%v)", err)
		return nil
	}
	return db
}

// migrateTestTables creates every table the handler suites touch.
func migrateTestTables(t *testing.T, db *gorm.DB) {
	err := db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.UserCommunity{},
		&models.UserFriend{},
		&models.Board{},
		&models.Post{},
		&models.Comment{},
		&models.Reaction{},
		&models.Lock{},
		&models.PreVerification{},
		&models.TelegramGroup{},
	)
	require.NoError(t, err)
}

// truncateForumTables resets content tables between tests.
func truncateForumTables(db *gorm.DB) {
	db.Exec("TRUNCATE TABLE pre_verifications, reactions, comments, posts RESTART IDENTITY CASCADE")
	db.Exec("TRUNCATE TABLE locks, boards RESTART IDENTITY CASCADE")
	db.Exec("TRUNCATE TABLE telegram_groups CASCADE")
	db.Exec("TRUNCATE TABLE user_friends, user_communities, communities, users CASCADE")
}

// testAuthMiddleware mirrors the claims the session middleware injects,
// taking them from headers so tests can impersonate anyone.
func testAuthMiddleware(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
		return
	}
	c.Set("user_id", userID)
	c.Set("community_id", c.GetHeader("X-Community-ID"))
	if roles := c.GetHeader("X-Roles"); roles != "" {
		c.Set("roles", strings.Split(roles, ","))
	}
	c.Set("is_admin", c.GetHeader("X-Admin") == "true")
	c.Next()
}

// seedCommunity creates a community plus a member and an admin with
// memberships.
func seedCommunity(t *testing.T, db *gorm.DB, id string) (*models.Community, *models.User, *models.User) {
	community := &models.Community{
		ID:               id,
		Name:             "Test Community",
		CommunityShortID: id + "-short",
		PluginID:         "plugin-" + id,
	}
	require.NoError(t, db.Create(community).Error)

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	member := &models.User{
		ID:   "member-" + suffix,
		Name: "Member",
	}
	require.NoError(t, db.Create(member).Error)
	admin := &models.User{
		ID:   "admin-" + suffix,
		Name: "Admin",
	}
	require.NoError(t, db.Create(admin).Error)

	now := time.Now()
	require.NoError(t, db.Create(&models.UserCommunity{
		UserID: member.ID, CommunityID: community.ID,
		Role: models.RoleMember, FirstVisitedAt: now, LastVisitedAt: now, VisitCount: 1,
	}).Error)
	require.NoError(t, db.Create(&models.UserCommunity{
		UserID: admin.ID, CommunityID: community.ID,
		Role: models.RoleAdmin, FirstVisitedAt: now, LastVisitedAt: now, VisitCount: 1,
	}).Error)

	return community, member, admin
}

// HandlersTestSuite covers the session surface, health probes and the
// metrics endpoints.
type HandlersTestSuite struct {
	suite.Suite
	db        *gorm.DB
	router    *gin.Engine
	handlers  *Handlers
	community *models.Community
	member    *models.User
	admin     *models.User
}

func (suite *HandlersTestSuite) SetupSuite() {
	db := openTestDB(suite.T())
	if db == nil {
		return
	}
	database.DB = db
	migrateTestTables(suite.T(), db)

	suite.db = db

	authService := auth.NewService([]byte("test_jwt_secret_key"), nil, time.Hour)
	gatingService := gating.NewService(gating.NewEvaluator(nil, nil))
	suite.handlers = NewHandlers(authService, gatingService, nil, nil)

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.setupRoutes()
}

func (suite *HandlersTestSuite) setupRoutes() {
	suite.router.GET("/health", suite.handlers.GetHealth)
	suite.router.GET("/ready", suite.handlers.GetReadiness)
	suite.router.POST("/api/auth/session", suite.handlers.EstablishSession)

	api := suite.router.Group("/api")
	api.Use(testAuthMiddleware)
	api.GET("/me", suite.handlers.GetMe)
	api.GET("/me/friends", suite.handlers.GetMyFriends)
	api.POST("/me/friends/sync", suite.handlers.SyncMyFriends)
	api.GET("/metrics", suite.handlers.GetAllMetrics)
	api.POST("/metrics/reset", suite.handlers.ResetMetrics)
}

func (suite *HandlersTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *HandlersTestSuite) SetupTest() {
	truncateForumTables(suite.db)
	suite.community, suite.member, suite.admin = seedCommunity(suite.T(), suite.db, "comm-handlers")
}

// request runs a request as the given user; nil user sends no auth
// headers.
func (suite *HandlersTestSuite) request(method, path string, body interface{}, user *models.User, admin bool) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("X-User-ID", user.ID)
		req.Header.Set("X-Community-ID", suite.community.ID)
		if admin {
			req.Header.Set("X-Admin", "true")
		}
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) TestHealthAlwaysOK() {
	t := suite.T()

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, "curia-backend", response["service"])
}

func (suite *HandlersTestSuite) TestReadinessReportsRedisDown() {
	t := suite.T()

	// The suite runs without Redis, so readiness must degrade.
	req, _ := http.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "degraded", response["status"])

	components := response["components"].(map[string]interface{})
	dbStatus := components["database"].(map[string]interface{})
	assert.Equal(t, "ok", dbStatus["status"])
	redisStatus := components["redis"].(map[string]interface{})
	assert.Equal(t, "unavailable", redisStatus["status"])
}

func (suite *HandlersTestSuite) TestEstablishSessionIssuesToken() {
	t := suite.T()

	body := map[string]interface{}{
		"userId":           "cg-user-9",
		"name":             "Visitor",
		"communityId":      "cg-comm-9",
		"communityName":    "Niners",
		"communityShortId": "niners",
		"pluginId":         "plugin-9",
		"roles":            []string{"role-basic"},
	}
	w := suite.request("POST", "/api/auth/session", body, nil, false)

	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotEmpty(t, response["token"])

	var membership models.UserCommunity
	require.NoError(t, suite.db.
		Where("user_id = ? AND community_id = ?", "cg-user-9", "cg-comm-9").
		First(&membership).Error)
	assert.Equal(t, 1, membership.VisitCount)
}

func (suite *HandlersTestSuite) TestEstablishSessionRejectsEmptyPayload() {
	t := suite.T()

	w := suite.request("POST", "/api/auth/session", map[string]interface{}{}, nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (suite *HandlersTestSuite) TestGetMe() {
	t := suite.T()

	w := suite.request("GET", "/api/me", nil, suite.member, false)

	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	user := response["user"].(map[string]interface{})
	assert.Equal(t, suite.member.ID, user["id"])

	membership := response["membership"].(map[string]interface{})
	assert.Equal(t, suite.community.ID, membership["community_id"])
	assert.Equal(t, models.RoleMember, membership["role"])
	assert.Equal(t, false, response["is_admin"])
}

func (suite *HandlersTestSuite) TestGetMeUnauthorized() {
	t := suite.T()

	req, _ := http.NewRequest("GET", "/api/me", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func (suite *HandlersTestSuite) TestFriendsSyncRoundTrip() {
	t := suite.T()

	body := map[string]interface{}{
		"friends": []map[string]interface{}{
			{"id": "friend-1", "name": "Ada", "imageUrl": "https://cdn.example/a.png"},
			{"id": "friend-2", "name": "Brin"},
		},
	}
	w := suite.request("POST", "/api/me/friends/sync", body, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "synced", response["status"])
	assert.Equal(t, float64(2), response["count"])

	w = suite.request("GET", "/api/me/friends", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code)

	json.Unmarshal(w.Body.Bytes(), &response)
	friends := response["friends"].([]interface{})
	require.Len(t, friends, 2)

	// Ordered by name
	first := friends[0].(map[string]interface{})
	assert.Equal(t, "Ada", first["name"])

	// A second sync with fewer friends removes the rest.
	body = map[string]interface{}{
		"friends": []map[string]interface{}{
			{"id": "friend-2", "name": "Brin"},
		},
	}
	w = suite.request("POST", "/api/me/friends/sync", body, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code)

	var total int64
	suite.db.Model(&models.UserFriend{}).Where("user_id = ?", suite.member.ID).Count(&total)
	assert.Equal(t, int64(1), total)
}

func (suite *HandlersTestSuite) TestMetricsEndpoint() {
	t := suite.T()

	w := suite.request("GET", "/api/metrics", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotNil(t, response["metrics"])
}

func (suite *HandlersTestSuite) TestResetMetricsRequiresAdmin() {
	t := suite.T()

	w := suite.request("POST", "/api/metrics/reset", nil, suite.member, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = suite.request("POST", "/api/metrics/reset", nil, suite.admin, true)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "reset", response["status"])
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

// TestRequireAdminMiddleware checks the admin gate standalone since it
// needs no database.
func TestRequireAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Set("is_admin", c.GetHeader("X-Admin") == "true")
		c.Next()
	}, middleware.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req, _ := http.NewRequest("GET", "/admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req, _ = http.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Admin", "true")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
