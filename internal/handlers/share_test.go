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
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/share"
)

// ShareHandlerTestSuite needs Redis for token storage.
type ShareHandlerTestSuite struct {
	suite.Suite
	db        *gorm.DB
	redis     *cache.RedisClient
	router    *gin.Engine
	handlers  *Handlers
	community *models.Community
	member    *models.User
	admin     *models.User
	board     *models.Board
	post      *models.Post
}

func (suite *ShareHandlerTestSuite) SetupSuite() {
	if os.Getenv("SKIP_REDIS_TESTS") != "" {
		suite.T().Skip("Skipping Redis-dependent tests (SKIP_REDIS_TESTS set)")
	}

	db := openTestDB(suite.T())
	if db == nil {
		return
	}
	database.DB = db
	migrateTestTables(suite.T(), db)
	suite.db = db

	rc, err := cache.NewRedisClient(
		getEnvOrDefault("REDIS_HOST", "localhost"),
		getEnvOrDefault("REDIS_PORT", "6379"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		suite.T().Skipf("Redis not available: %v", err)
	}
	suite.redis = rc

	authService := auth.NewService([]byte("test_jwt_secret_key"), nil, time.Hour)
	gatingService := gating.NewService(gating.NewEvaluator(nil, nil))
	shareService := share.NewService(rc, "https://forum.example.com", "https://app.cg")
	suite.handlers = NewHandlers(authService, gatingService, shareService, rc)

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()

	// The resolve endpoint is public: share links work logged out.
	suite.router.GET("/c/:communityShortId/:pluginId/:token", suite.handlers.ResolveShareURL)

	api := suite.router.Group("/api")
	api.Use(testAuthMiddleware)
	api.POST("/posts/:postId/share", suite.handlers.SharePost)
}

func (suite *ShareHandlerTestSuite) TearDownSuite() {
	if suite.redis != nil {
		suite.redis.Close()
	}
	if suite.db == nil {
		return
	}
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *ShareHandlerTestSuite) SetupTest() {
	truncateForumTables(suite.db)
	suite.community, suite.member, suite.admin = seedCommunity(suite.T(), suite.db, "comm-share")

	suite.board = &models.Board{CommunityID: suite.community.ID, Name: "general", Slug: "general"}
	require.NoError(suite.T(), suite.db.Create(suite.board).Error)

	suite.post = &models.Post{
		AuthorUserID: suite.member.ID,
		BoardID:      suite.board.ID,
		Title:        "worth sharing",
		Content:      "body",
	}
	require.NoError(suite.T(), suite.db.Create(suite.post).Error)
}

func (suite *ShareHandlerTestSuite) TestSharePostAndResolve() {
	t := suite.T()

	req, _ := http.NewRequest("POST", fmt.Sprintf("/api/posts/%d/share", suite.post.ID), bytes.NewBuffer(nil))
	req.Header.Set("X-User-ID", suite.member.ID)
	req.Header.Set("X-Community-ID", suite.community.ID)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	token := response["token"].(string)
	require.NotEmpty(t, token)

	wantURL := fmt.Sprintf("https://forum.example.com/c/%s/%s/%s",
		suite.community.CommunityShortID, suite.community.PluginID, token)
	assert.Equal(t, wantURL, response["share_url"])

	// Following the link drops the content cookie and bounces to the host.
	path := fmt.Sprintf("/c/%s/%s/%s", suite.community.CommunityShortID, suite.community.PluginID, token)
	req, _ = http.NewRequest("GET", path, nil)
	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	wantTarget := fmt.Sprintf("https://app.cg/c/%s/plugin/%s",
		suite.community.CommunityShortID, suite.community.PluginID)
	assert.Equal(t, wantTarget, w.Header().Get("Location"))

	cookie := findCookie(w.Result().Cookies(), "shared_content_token")
	require.NotNil(t, cookie)
	assert.Equal(t, fmt.Sprintf("%d:%d", suite.board.ID, suite.post.ID), cookie.Value)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
}

func (suite *ShareHandlerTestSuite) TestResolveUnknownTokenStillRedirects() {
	t := suite.T()

	path := fmt.Sprintf("/c/%s/%s/doesnotexist1", suite.community.CommunityShortID, suite.community.PluginID)
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "https://app.cg/c/")
	assert.Nil(t, findCookie(w.Result().Cookies(), "shared_content_token"))
}

func (suite *ShareHandlerTestSuite) TestResolveForwardsQueryParams() {
	t := suite.T()

	path := fmt.Sprintf("/c/%s/%s/doesnotexist1?cg_theme=dark&cg_bg_color=%%23000",
		suite.community.CommunityShortID, suite.community.PluginID)
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.True(t, strings.HasSuffix(location, "?cg_theme=dark&cg_bg_color=%23000"), "Location: %s", location)
}

func TestShareHandlerSuite(t *testing.T) {
	suite.Run(t, new(ShareHandlerTestSuite))
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TestGetSharedContent needs no storage at all: the handler only parses
// and clears the cookie the share redirect planted.
func TestGetSharedContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := &Handlers{}
	router.GET("/api/me/shared-content", h.GetSharedContent)

	get := func(cookie string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("GET", "/api/me/shared-content", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: "shared_content_token", Value: cookie})
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("no cookie", func(t *testing.T) {
		w := get("")
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Nil(t, response["shared_content"])
	})

	t.Run("valid cookie", func(t *testing.T) {
		w := get("12:42")
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		content := response["shared_content"].(map[string]interface{})
		assert.Equal(t, float64(12), content["board_id"])
		assert.Equal(t, float64(42), content["post_id"])

		// Read once: the response clears the cookie.
		cleared := findCookie(w.Result().Cookies(), "shared_content_token")
		require.NotNil(t, cleared)
		assert.Equal(t, "", cleared.Value)
		assert.True(t, cleared.MaxAge < 0)
	})

	t.Run("malformed cookie", func(t *testing.T) {
		w := get("garbage")
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Nil(t, response["shared_content"])
	})
}
