package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/auth"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/gating"
	"github.com/flotob/curia-sub002/internal/models"
)

// ReactionTestSuite contains reaction handler tests
type ReactionTestSuite struct {
	suite.Suite
	db        *gorm.DB
	router    *gin.Engine
	handlers  *Handlers
	community *models.Community
	member    *models.User
	admin     *models.User
	board     *models.Board
	post      *models.Post
	comment   *models.Comment
}

func (suite *ReactionTestSuite) SetupSuite() {
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

	api := suite.router.Group("/api")
	api.Use(testAuthMiddleware)
	api.GET("/posts/:postId/reactions", suite.handlers.GetPostReactions)
	api.POST("/posts/:postId/reactions", suite.handlers.AddPostReaction)
	api.DELETE("/posts/:postId/reactions", suite.handlers.RemovePostReaction)
	api.GET("/comments/:commentId/reactions", suite.handlers.GetCommentReactions)
	api.POST("/comments/:commentId/reactions", suite.handlers.AddCommentReaction)
	api.DELETE("/comments/:commentId/reactions", suite.handlers.RemoveCommentReaction)
	api.GET("/locks/:lockId/reactions", suite.handlers.GetLockReactions)
	api.POST("/locks/:lockId/reactions", suite.handlers.AddLockReaction)
	api.DELETE("/locks/:lockId/reactions", suite.handlers.RemoveLockReaction)
}

func (suite *ReactionTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *ReactionTestSuite) SetupTest() {
	truncateForumTables(suite.db)
	suite.community, suite.member, suite.admin = seedCommunity(suite.T(), suite.db, "comm-reactions")

	suite.board = &models.Board{CommunityID: suite.community.ID, Name: "general", Slug: "general"}
	require.NoError(suite.T(), suite.db.Create(suite.board).Error)

	suite.post = &models.Post{
		AuthorUserID: suite.admin.ID,
		BoardID:      suite.board.ID,
		Title:        "react to me",
		Content:      "body",
	}
	require.NoError(suite.T(), suite.db.Create(suite.post).Error)

	suite.comment = &models.Comment{PostID: suite.post.ID, AuthorUserID: suite.admin.ID, Content: "reply"}
	require.NoError(suite.T(), suite.db.Create(suite.comment).Error)
}

func (suite *ReactionTestSuite) do(method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", user.ID)
	req.Header.Set("X-Community-ID", suite.community.ID)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *ReactionTestSuite) postReactionsPath() string {
	return fmt.Sprintf("/api/posts/%d/reactions", suite.post.ID)
}

func decodeAggregate(w *httptest.ResponseRecorder) (groups []map[string]interface{}, total float64) {
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	for _, raw := range response["reactions"].([]interface{}) {
		groups = append(groups, raw.(map[string]interface{}))
	}
	total, _ = response["total"].(float64)
	return groups, total
}

func (suite *ReactionTestSuite) TestAddPostReaction() {
	t := suite.T()

	w := suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🎉"}, suite.member)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	groups, total := decodeAggregate(w)
	require.Len(t, groups, 1)
	assert.Equal(t, "🎉", groups[0]["emoji"])
	assert.Equal(t, float64(1), groups[0]["count"])
	assert.Equal(t, true, groups[0]["user_reacted"])
	assert.Equal(t, float64(1), total)

	users := groups[0]["users"].([]interface{})
	assert.Contains(t, users, suite.member.Name)
}

func (suite *ReactionTestSuite) TestAggregateKeepsFirstSeenOrder() {
	t := suite.T()

	suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🎉"}, suite.member)
	suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🚀"}, suite.member)
	w := suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🎉"}, suite.admin)

	groups, total := decodeAggregate(w)
	require.Len(t, groups, 2)
	assert.Equal(t, "🎉", groups[0]["emoji"])
	assert.Equal(t, float64(2), groups[0]["count"])
	assert.Equal(t, "🚀", groups[1]["emoji"])
	assert.Equal(t, float64(3), total)

	// The admin has not used 🚀
	assert.Equal(t, false, groups[1]["user_reacted"])
}

func (suite *ReactionTestSuite) TestDoubleReactIsNoop() {
	t := suite.T()

	suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🔥"}, suite.member)
	w := suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": "🔥"}, suite.member)
	assert.Equal(t, http.StatusOK, w.Code)

	groups, _ := decodeAggregate(w)
	require.Len(t, groups, 1)
	assert.Equal(t, float64(1), groups[0]["count"])

	var count int64
	suite.db.Model(&models.Reaction{}).Where("post_id = ?", suite.post.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func (suite *ReactionTestSuite) TestEmojiValidation() {
	t := suite.T()

	w := suite.do("POST", suite.postReactionsPath(), map[string]interface{}{}, suite.member)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = suite.do("POST", suite.postReactionsPath(), map[string]interface{}{
		"emoji": strings.Repeat("🎉", 17),
	}, suite.member)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func (suite *ReactionTestSuite) TestUpvoteSyncsPostCount() {
	t := suite.T()

	w := suite.do("POST", suite.postReactionsPath(), map[string]interface{}{"emoji": models.UpvoteEmoji}, suite.member)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var post models.Post
	require.NoError(t, suite.db.First(&post, "id = ?", suite.post.ID).Error)
	assert.Equal(t, 1, post.UpvoteCount)

	w = suite.do("DELETE", suite.postReactionsPath()+"?emoji="+url.QueryEscape(models.UpvoteEmoji), nil, suite.member)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, suite.db.First(&post, "id = ?", suite.post.ID).Error)
	assert.Equal(t, 0, post.UpvoteCount)
}

func (suite *ReactionTestSuite) TestRemoveRequiresEmojiParam() {
	t := suite.T()

	w := suite.do("DELETE", suite.postReactionsPath(), nil, suite.member)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func (suite *ReactionTestSuite) TestRemoveMissingReactionIsIdempotent() {
	t := suite.T()

	w := suite.do("DELETE", suite.postReactionsPath()+"?emoji="+url.QueryEscape("🫥"), nil, suite.member)
	assert.Equal(t, http.StatusOK, w.Code)

	_, total := decodeAggregate(w)
	assert.Equal(t, float64(0), total)
}

func (suite *ReactionTestSuite) TestCommentReactions() {
	t := suite.T()

	path := fmt.Sprintf("/api/comments/%d/reactions", suite.comment.ID)

	w := suite.do("POST", path, map[string]interface{}{"emoji": "💯"}, suite.member)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	w = suite.do("GET", path, nil, suite.admin)
	groups, total := decodeAggregate(w)
	require.Len(t, groups, 1)
	assert.Equal(t, "💯", groups[0]["emoji"])
	assert.Equal(t, false, groups[0]["user_reacted"])
	assert.Equal(t, float64(1), total)

	// Comment reactions never touch the post's upvote cache.
	var post models.Post
	require.NoError(t, suite.db.First(&post, "id = ?", suite.post.ID).Error)
	assert.Equal(t, 0, post.UpvoteCount)
}

func (suite *ReactionTestSuite) TestLockReactions() {
	t := suite.T()

	lock := &models.Lock{
		CommunityID:   suite.community.ID,
		CreatorUserID: suite.admin.ID,
		Name:          "popular-lock",
		GatingConfig: &models.GatingConfig{
			Categories: []models.GatingCategory{{
				Type:    models.CategoryEthereumProfile,
				Enabled: true,
				Requirements: []models.GatingRequirement{{
					Type: models.RequirementNativeBalance, MinAmount: "1",
				}},
			}},
		},
	}
	require.NoError(t, suite.db.Create(lock).Error)

	path := fmt.Sprintf("/api/locks/%d/reactions", lock.ID)

	w := suite.do("POST", path, map[string]interface{}{"emoji": "🔐"}, suite.member)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	groups, _ := decodeAggregate(w)
	require.Len(t, groups, 1)
	assert.Equal(t, "🔐", groups[0]["emoji"])
}

func (suite *ReactionTestSuite) TestReactionTargetNotFound() {
	t := suite.T()

	w := suite.do("POST", "/api/posts/999999/reactions", map[string]interface{}{"emoji": "🎉"}, suite.member)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = suite.do("POST", "/api/locks/999999/reactions", map[string]interface{}{"emoji": "🎉"}, suite.member)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReactionSuite(t *testing.T) {
	suite.Run(t, new(ReactionTestSuite))
}
