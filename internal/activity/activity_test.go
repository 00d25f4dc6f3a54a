package activity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/flotob/curia-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ActivityTestSuite exercises the what's-new digest queries against a
// real database.
type ActivityTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *Service
	since   time.Time
}

func (suite *ActivityTestSuite) SetupSuite() {
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
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		suite.T().Skipf("Skipping activity tests: database not available (%v)", err)
		return
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.Board{},
		&models.Post{},
		&models.Comment{},
		&models.Reaction{},
	)
	require.NoError(suite.T(), err)

	suite.db = db
	suite.service = &Service{db: db}
}

func (suite *ActivityTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	suite.db.Exec("DROP TABLE IF EXISTS reactions, comments, posts, boards, communities, users CASCADE")

	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *ActivityTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM reactions")
	suite.db.Exec("DELETE FROM comments")
	suite.db.Exec("DELETE FROM posts")
	suite.db.Exec("DELETE FROM boards")
	suite.db.Exec("DELETE FROM communities")
	suite.db.Exec("DELETE FROM users")

	suite.since = time.Now().Add(-time.Hour)

	users := []models.User{
		{ID: "cg-me", Name: "Marta"},
		{ID: "cg-other", Name: "Yusuf"},
		{ID: "cg-third", Name: "Priya"},
	}
	for i := range users {
		require.NoError(suite.T(), suite.db.Create(&users[i]).Error)
	}

	community := models.Community{ID: "cg-comm-1", Name: "Degens"}
	require.NoError(suite.T(), suite.db.Create(&community).Error)

	open := models.Board{CommunityID: "cg-comm-1", Name: "General", Slug: "general"}
	require.NoError(suite.T(), suite.db.Create(&open).Error)

	gated := models.Board{
		CommunityID: "cg-comm-1",
		Name:        "Mods only",
		Slug:        "mods-only",
		Settings: &models.BoardSettings{
			Permissions: &models.BoardPermissions{AllowedRoles: []string{"moderator"}},
		},
	}
	require.NoError(suite.T(), suite.db.Create(&gated).Error)

	// My post, commented on and upvoted by someone else.
	myPost := models.Post{AuthorUserID: "cg-me", BoardID: open.ID, Title: "My build log", Content: "week 1"}
	require.NoError(suite.T(), suite.db.Create(&myPost).Error)

	reply := models.Comment{PostID: myPost.ID, AuthorUserID: "cg-other", Content: "nice progress"}
	require.NoError(suite.T(), suite.db.Create(&reply).Error)

	ownReply := models.Comment{PostID: myPost.ID, AuthorUserID: "cg-me", Content: "thanks"}
	require.NoError(suite.T(), suite.db.Create(&ownReply).Error)

	postID := myPost.ID
	upvote := models.Reaction{UserID: "cg-other", PostID: &postID, Emoji: models.UpvoteEmoji}
	require.NoError(suite.T(), suite.db.Create(&upvote).Error)

	// A thread by someone else that I participated in.
	theirPost := models.Post{AuthorUserID: "cg-other", BoardID: open.ID, Title: "Show and tell", Content: "look at this"}
	require.NoError(suite.T(), suite.db.Create(&theirPost).Error)

	myComment := models.Comment{PostID: theirPost.ID, AuthorUserID: "cg-me", Content: "love it"}
	require.NoError(suite.T(), suite.db.Create(&myComment).Error)

	followUp := models.Comment{PostID: theirPost.ID, AuthorUserID: "cg-third", Content: "same here"}
	require.NoError(suite.T(), suite.db.Create(&followUp).Error)

	// A post in the gated board, invisible without the moderator role.
	gatedPost := models.Post{AuthorUserID: "cg-other", BoardID: gated.ID, Title: "Mod sync", Content: "agenda"}
	require.NoError(suite.T(), suite.db.Create(&gatedPost).Error)
}

func (suite *ActivityTestSuite) params() Params {
	return Params{
		UserID:      "cg-me",
		CommunityID: "cg-comm-1",
		Since:       suite.since,
		Limit:       10,
	}
}

func (suite *ActivityTestSuite) TestFullDigest() {
	t := suite.T()

	resp, err := suite.service.GetWhatsNew(context.Background(), suite.params())
	require.NoError(t, err)
	require.Len(t, resp.Categories, 4)

	replies := resp.Categories[CategoryCommentsOnMyPosts]
	require.NotNil(t, replies)
	assert.Equal(t, int64(1), replies.Count)
	require.Len(t, replies.Items, 1)
	assert.Equal(t, "My build log", replies.Items[0].PostTitle)
	assert.Equal(t, "nice progress", replies.Items[0].Preview)
	require.NotNil(t, replies.Items[0].Actor)
	assert.Equal(t, "Yusuf", replies.Items[0].Actor.Name)

	reactions := resp.Categories[CategoryReactionsOnMyContent]
	require.NotNil(t, reactions)
	assert.Equal(t, int64(1), reactions.Count)
	require.Len(t, reactions.Items, 1)
	assert.Equal(t, models.UpvoteEmoji, reactions.Items[0].Emoji)
	assert.Equal(t, "My build log", reactions.Items[0].PostTitle)
	require.NotNil(t, reactions.Items[0].Actor)
	assert.Equal(t, "Yusuf", reactions.Items[0].Actor.Name)

	// Someone else's post plus the thread I joined, but not the gated
	// board's post.
	newPosts := resp.Categories[CategoryNewPostsInBoards]
	require.NotNil(t, newPosts)
	assert.Equal(t, int64(1), newPosts.Count)
	require.Len(t, newPosts.Items, 1)
	assert.Equal(t, "Show and tell", newPosts.Items[0].PostTitle)

	threads := resp.Categories[CategoryCommentsOnPostsICommented]
	require.NotNil(t, threads)
	assert.Equal(t, int64(1), threads.Count)
	require.Len(t, threads.Items, 1)
	assert.Equal(t, "same here", threads.Items[0].Preview)
	require.NotNil(t, threads.Items[0].Actor)
	assert.Equal(t, "Priya", threads.Items[0].Actor.Name)
}

func (suite *ActivityTestSuite) TestAdminSeesGatedBoards() {
	t := suite.T()

	params := suite.params()
	params.IsAdmin = true

	resp, err := suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)

	newPosts := resp.Categories[CategoryNewPostsInBoards]
	require.NotNil(t, newPosts)
	assert.Equal(t, int64(2), newPosts.Count)
}

func (suite *ActivityTestSuite) TestRoleUnlocksGatedBoards() {
	t := suite.T()

	params := suite.params()
	params.Roles = []string{"moderator"}

	resp, err := suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)

	newPosts := resp.Categories[CategoryNewPostsInBoards]
	require.NotNil(t, newPosts)
	assert.Equal(t, int64(2), newPosts.Count)
}

func (suite *ActivityTestSuite) TestSinceCutsOffOldActivity() {
	t := suite.T()

	params := suite.params()
	params.Since = time.Now().Add(time.Minute)

	resp, err := suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)

	for category, digest := range resp.Categories {
		assert.Zero(t, digest.Count, "category %s should be empty", category)
		assert.Empty(t, digest.Items, "category %s should be empty", category)
	}
}

func (suite *ActivityTestSuite) TestSingleCategory() {
	t := suite.T()

	params := suite.params()
	params.Category = CategoryCommentsOnMyPosts

	resp, err := suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, resp.Categories, 1)
	require.NotNil(t, resp.Categories[CategoryCommentsOnMyPosts])
}

func (suite *ActivityTestSuite) TestSoftDeletedPostsExcluded() {
	t := suite.T()

	require.NoError(t, suite.db.Where("title = ?", "My build log").Delete(&models.Post{}).Error)

	resp, err := suite.service.GetWhatsNew(context.Background(), suite.params())
	require.NoError(t, err)

	assert.Zero(t, resp.Categories[CategoryCommentsOnMyPosts].Count)
	assert.Zero(t, resp.Categories[CategoryReactionsOnMyContent].Count)
}

func (suite *ActivityTestSuite) TestLimitClamping() {
	t := suite.T()

	params := suite.params()
	params.Limit = 0

	resp, err := suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, resp.Meta.Limit)

	params.Limit = 500
	resp, err = suite.service.GetWhatsNew(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, resp.Meta.Limit)
}

func TestActivitySuite(t *testing.T) {
	if os.Getenv("SKIP_DB_TESTS") == "true" {
		t.Skip("Skipping database tests")
	}

	suite.Run(t, new(ActivityTestSuite))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("a", 200)
	got := preview(long)
	assert.Equal(t, previewRunes, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
