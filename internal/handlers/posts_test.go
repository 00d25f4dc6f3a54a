package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
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

// PostTestSuite contains post handler tests
type PostTestSuite struct {
	suite.Suite
	db        *gorm.DB
	router    *gin.Engine
	handlers  *Handlers
	community *models.Community
	member    *models.User
	admin     *models.User
	board     *models.Board
}

func (suite *PostTestSuite) SetupSuite() {
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
	api.GET("/communities/:communityId/boards/:boardId/posts", suite.handlers.ListBoardPosts)
	api.POST("/communities/:communityId/boards/:boardId/posts", suite.handlers.CreatePost)
	api.GET("/posts/:postId", suite.handlers.GetPost)
	api.PATCH("/posts/:postId", suite.handlers.UpdatePost)
	api.DELETE("/posts/:postId", suite.handlers.DeletePost)
	api.GET("/search/posts", suite.handlers.SearchPosts)
	api.GET("/tags/suggestions", suite.handlers.SuggestTags)
}

func (suite *PostTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *PostTestSuite) SetupTest() {
	truncateForumTables(suite.db)
	suite.community, suite.member, suite.admin = seedCommunity(suite.T(), suite.db, "comm-posts")

	suite.board = &models.Board{
		CommunityID: suite.community.ID,
		Name:        "general",
		Slug:        "general",
	}
	require.NoError(suite.T(), suite.db.Create(suite.board).Error)
}

func (suite *PostTestSuite) do(method, path string, body interface{}, user *models.User, admin bool) *httptest.ResponseRecorder {
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
	if admin {
		req.Header.Set("X-Admin", "true")
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *PostTestSuite) postsPath() string {
	return fmt.Sprintf("/api/communities/%s/boards/%d/posts", suite.community.ID, suite.board.ID)
}

// seedPost inserts a post with a controlled created_at so pagination
// ordering is deterministic.
func (suite *PostTestSuite) seedPost(title string, createdAt time.Time, tags ...string) *models.Post {
	post := &models.Post{
		AuthorUserID: suite.member.ID,
		BoardID:      suite.board.ID,
		Title:        title,
		Content:      "content of " + title,
		Tags:         tags,
	}
	require.NoError(suite.T(), suite.db.Create(post).Error)
	require.NoError(suite.T(), suite.db.Model(post).UpdateColumn("created_at", createdAt).Error)
	post.CreatedAt = createdAt
	return post
}

func (suite *PostTestSuite) TestCreatePost() {
	t := suite.T()

	body := map[string]interface{}{
		"title":   "Hello world",
		"content": "First post",
		"tags":    []string{"intro", "meta"},
	}
	w := suite.do("POST", suite.postsPath(), body, suite.member, false)

	assert.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	post := response["post"].(map[string]interface{})
	assert.Equal(t, "Hello world", post["title"])
	assert.Equal(t, suite.member.ID, post["author_user_id"])

	author := post["author"].(map[string]interface{})
	assert.Equal(t, suite.member.Name, author["name"])

	var board models.Board
	require.NoError(t, suite.db.First(&board, "id = ?", suite.board.ID).Error)
	assert.Equal(t, 1, board.PostCount)
}

func (suite *PostTestSuite) TestCreatePostMissingTitle() {
	t := suite.T()

	w := suite.do("POST", suite.postsPath(), map[string]interface{}{"content": "no title"}, suite.member, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (suite *PostTestSuite) TestCreatePostTooManyTags() {
	t := suite.T()

	tags := make([]string, 11)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag%d", i)
	}
	body := map[string]interface{}{
		"title":   "Tagged",
		"content": "body",
		"tags":    tags,
	}
	w := suite.do("POST", suite.postsPath(), body, suite.member, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func (suite *PostTestSuite) TestCreatePostUnknownLock() {
	t := suite.T()

	body := map[string]interface{}{
		"title":   "Gated",
		"content": "body",
		"lock_id": 999999,
	}
	w := suite.do("POST", suite.postsPath(), body, suite.member, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func (suite *PostTestSuite) TestCreatePostGatedBoardWithoutVerification() {
	t := suite.T()

	lock := &models.Lock{
		CommunityID:   suite.community.ID,
		CreatorUserID: suite.admin.ID,
		Name:          "holders",
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

	gated := &models.Board{
		CommunityID: suite.community.ID,
		Name:        "gated",
		Slug:        "gated",
		Settings: &models.BoardSettings{
			Permissions: &models.BoardPermissions{
				Locks: &models.LockGating{LockIDs: []int64{lock.ID}, Fulfillment: models.FulfillmentAny},
			},
		},
	}
	require.NoError(t, suite.db.Create(gated).Error)

	body := map[string]interface{}{"title": "Nope", "content": "body"}
	path := fmt.Sprintf("/api/communities/%s/boards/%d/posts", suite.community.ID, gated.ID)
	w := suite.do("POST", path, body, suite.member, false)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// A live pre-verification opens the gate.
	require.NoError(t, suite.db.Create(&models.PreVerification{
		UserID:        suite.member.ID,
		LockID:        lock.ID,
		CategoryType:  models.CategoryEthereumProfile,
		WalletAddress: "0x2222222222222222222222222222222222222222",
		Status:        models.VerificationStatusVerified,
		VerifiedAt:    time.Now(),
		ExpiresAt:     time.Now().Add(time.Hour),
	}).Error)

	w = suite.do("POST", path, body, suite.member, false)
	assert.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
}

func (suite *PostTestSuite) TestListPostsCursorPagination() {
	t := suite.T()

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		suite.seedPost(fmt.Sprintf("post-%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	w := suite.do("GET", suite.postsPath()+"?limit=2", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var page1 map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &page1)
	posts := page1["posts"].([]interface{})
	require.Len(t, posts, 2)
	assert.Equal(t, "post-4", posts[0].(map[string]interface{})["title"])
	assert.Equal(t, "post-3", posts[1].(map[string]interface{})["title"])

	cursor := page1["next_cursor"].(string)
	require.NotEmpty(t, cursor)

	w = suite.do("GET", suite.postsPath()+"?limit=2&cursor="+url.QueryEscape(cursor), nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code)

	var page2 map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &page2)
	posts = page2["posts"].([]interface{})
	require.Len(t, posts, 2)
	assert.Equal(t, "post-2", posts[0].(map[string]interface{})["title"])
	assert.Equal(t, "post-1", posts[1].(map[string]interface{})["title"])

	cursor = page2["next_cursor"].(string)
	require.NotEmpty(t, cursor)

	w = suite.do("GET", suite.postsPath()+"?limit=2&cursor="+url.QueryEscape(cursor), nil, suite.member, false)
	var page3 map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &page3)
	posts = page3["posts"].([]interface{})
	require.Len(t, posts, 1)
	assert.Equal(t, "post-0", posts[0].(map[string]interface{})["title"])
	assert.Equal(t, "", page3["next_cursor"])
}

func (suite *PostTestSuite) TestListPostsMalformedCursor() {
	t := suite.T()

	w := suite.do("GET", suite.postsPath()+"?cursor=garbage!!!", nil, suite.member, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (suite *PostTestSuite) TestListPostsTagFilter() {
	t := suite.T()

	base := time.Now().Add(-time.Hour)
	suite.seedPost("tagged", base, "golang", "backend")
	suite.seedPost("other", base.Add(time.Minute), "frontend")

	w := suite.do("GET", suite.postsPath()+"?tags=golang", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	posts := response["posts"].([]interface{})
	require.Len(t, posts, 1)
	assert.Equal(t, "tagged", posts[0].(map[string]interface{})["title"])
}

func (suite *PostTestSuite) TestGetPost() {
	t := suite.T()

	post := suite.seedPost("readable", time.Now())
	require.NoError(t, suite.db.Create(&models.Reaction{
		UserID: suite.member.ID,
		PostID: &post.ID,
		Emoji:  "🎉",
	}).Error)

	w := suite.do("GET", fmt.Sprintf("/api/posts/%d", post.ID), nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "readable", response["post"].(map[string]interface{})["title"])

	board := response["board"].(map[string]interface{})
	assert.Equal(t, float64(suite.board.ID), board["id"])

	myReactions := response["my_reactions"].([]interface{})
	require.Len(t, myReactions, 1)
	assert.Equal(t, "🎉", myReactions[0])
}

func (suite *PostTestSuite) TestGetPostNotFound() {
	t := suite.T()

	w := suite.do("GET", "/api/posts/999999", nil, suite.member, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func (suite *PostTestSuite) TestUpdatePostAuthorOnly() {
	t := suite.T()

	post := suite.seedPost("original", time.Now())

	body := map[string]interface{}{"title": "edited"}

	// The admin may edit even though they are not the author.
	w := suite.do("PATCH", fmt.Sprintf("/api/posts/%d", post.ID), body, suite.admin, true)
	assert.Equal(t, http.StatusOK, w.Code)

	// Another plain member may not.
	other := &models.User{ID: fmt.Sprintf("other-%d", time.Now().UnixNano()), Name: "Other"}
	require.NoError(t, suite.db.Create(other).Error)
	w = suite.do("PATCH", fmt.Sprintf("/api/posts/%d", post.ID), body, other, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var updated models.Post
	require.NoError(t, suite.db.First(&updated, "id = ?", post.ID).Error)
	assert.Equal(t, "edited", updated.Title)
	assert.True(t, updated.IsEdited)
	assert.NotNil(t, updated.EditedAt)
}

func (suite *PostTestSuite) TestDeletePostReleasesBoardCount() {
	t := suite.T()

	w := suite.do("POST", suite.postsPath(), map[string]interface{}{
		"title": "to delete", "content": "body",
	}, suite.member, false)
	require.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	postID := int64(response["post"].(map[string]interface{})["id"].(float64))

	w = suite.do("DELETE", fmt.Sprintf("/api/posts/%d", postID), nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code)

	var board models.Board
	require.NoError(t, suite.db.First(&board, "id = ?", suite.board.ID).Error)
	assert.Equal(t, 0, board.PostCount)

	var count int64
	suite.db.Model(&models.Post{}).Where("id = ?", postID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func (suite *PostTestSuite) TestSearchPosts() {
	t := suite.T()

	base := time.Now().Add(-time.Hour)
	suite.seedPost("Sourdough starter guide", base)
	suite.seedPost("Pizza dough hydration", base.Add(time.Minute))
	suite.seedPost("Unrelated topic", base.Add(2*time.Minute))

	w := suite.do("GET", "/api/search/posts?q=dough", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	posts := response["posts"].([]interface{})
	assert.Len(t, posts, 1)

	meta := response["meta"].(map[string]interface{})
	assert.Equal(t, "dough", meta["query"])
}

func (suite *PostTestSuite) TestSearchPostsQueryTooShort() {
	t := suite.T()

	w := suite.do("GET", "/api/search/posts?q=a", nil, suite.member, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func (suite *PostTestSuite) TestSuggestTags() {
	t := suite.T()

	base := time.Now().Add(-time.Hour)
	suite.seedPost("one", base, "golang", "gogl")
	suite.seedPost("two", base.Add(time.Minute), "golang")
	suite.seedPost("three", base.Add(2*time.Minute), "rust")

	w := suite.do("GET", "/api/tags/suggestions?q=go", nil, suite.member, false)
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	suggestions := response["suggestions"].([]interface{})
	require.Len(t, suggestions, 2)

	// Most used first
	first := suggestions[0].(map[string]interface{})
	assert.Equal(t, "golang", first["tag"])
	assert.Equal(t, float64(2), first["usage"])
}

func TestPostSuite(t *testing.T) {
	suite.Run(t, new(PostTestSuite))
}
