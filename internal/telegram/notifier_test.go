package telegram

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// fakeSender records deliveries and can be told to fail specific chats.
type fakeSender struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		sent:    make(map[int64][]string),
		failFor: make(map[int64]bool),
	}
}

func (f *fakeSender) SendHTML(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[chatID] {
		return fmt.Errorf("telegram says no")
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeSender) messages(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

type NotifierTestSuite struct {
	suite.Suite
	db       *gorm.DB
	sender   *fakeSender
	notifier *Notifier
}

func (suite *NotifierTestSuite) SetupSuite() {
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
		suite.T().Skipf("Skipping telegram tests: database not available (%v)", err)
		return
	}

	database.DB = db

	err = db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.TelegramGroup{},
	)
	require.NoError(suite.T(), err)

	suite.db = db
}

func (suite *NotifierTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	suite.db.Exec("DROP TABLE IF EXISTS telegram_groups, communities, users CASCADE")

	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *NotifierTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM telegram_groups")
	suite.db.Exec("DELETE FROM communities")
	suite.db.Exec("DELETE FROM users")

	user := models.User{ID: "cg-user-1", Name: "Ada"}
	require.NoError(suite.T(), suite.db.Create(&user).Error)
	community := models.Community{ID: "cg-comm-1", Name: "Loopers", CommunityShortID: "loopers", PluginID: "plugin-1"}
	require.NoError(suite.T(), suite.db.Create(&community).Error)

	suite.sender = newFakeSender()
	suite.notifier = NewNotifier(suite.sender, nil)
	suite.notifier.Start()
}

func (suite *NotifierTestSuite) TearDownTest() {
	if suite.notifier != nil {
		suite.notifier.Stop()
	}
}

func (suite *NotifierTestSuite) createGroup(chatID int64, mutate func(*models.TelegramGroup)) *models.TelegramGroup {
	group := &models.TelegramGroup{
		ChatID:               chatID,
		CommunityID:          "cg-comm-1",
		ChatTitle:            fmt.Sprintf("Group %d", chatID),
		RegisteredByUserID:   "cg-user-1",
		NotificationsEnabled: true,
		IsActive:             true,
	}
	if mutate != nil {
		mutate(group)
	}
	require.NoError(suite.T(), suite.db.Create(group).Error)
	return group
}

func (suite *NotifierTestSuite) submitAndWait(event *Notification) {
	require.NoError(suite.T(), suite.notifier.Submit(event))
	require.NoError(suite.T(), suite.notifier.WaitForDelivery(event.ID, 5*time.Second))
}

func (suite *NotifierTestSuite) TestFanOutToActiveGroups() {
	suite.createGroup(101, nil)
	suite.createGroup(102, nil)
	suite.createGroup(103, func(g *models.TelegramGroup) { g.IsActive = false })
	suite.createGroup(104, func(g *models.TelegramGroup) { g.NotificationsEnabled = false })

	event := &Notification{
		Type:        models.TelegramEventPostCreated,
		CommunityID: "cg-comm-1",
		BoardID:     1,
		BoardName:   "General",
		PostID:      7,
		PostTitle:   "Hello world",
		Preview:     "First post",
		ActorName:   "Ada",
	}
	suite.submitAndWait(event)

	assert.Len(suite.T(), suite.sender.messages(101), 1)
	assert.Len(suite.T(), suite.sender.messages(102), 1)
	assert.Empty(suite.T(), suite.sender.messages(103))
	assert.Empty(suite.T(), suite.sender.messages(104))

	var group models.TelegramGroup
	require.NoError(suite.T(), suite.db.First(&group, "chat_id = ?", int64(101)).Error)
	assert.Equal(suite.T(), int64(1), group.NotificationCount)
	assert.NotNil(suite.T(), group.LastNotificationAt)
}

func (suite *NotifierTestSuite) TestEventTogglesRespected() {
	off := false
	suite.createGroup(201, func(g *models.TelegramGroup) {
		g.NotificationSettings = &models.TelegramNotificationSettings{PostCreated: &off}
	})

	post := &Notification{
		Type:        models.TelegramEventPostCreated,
		CommunityID: "cg-comm-1",
		PostTitle:   "Muted kind",
	}
	suite.submitAndWait(post)
	assert.Empty(suite.T(), suite.sender.messages(201))

	comment := &Notification{
		Type:        models.TelegramEventCommentCreated,
		CommunityID: "cg-comm-1",
		PostTitle:   "Muted kind",
		ActorName:   "Ada",
	}
	suite.submitAndWait(comment)
	assert.Len(suite.T(), suite.sender.messages(201), 1)
}

func (suite *NotifierTestSuite) TestQuietHoursSkipDelivery() {
	hour := time.Now().UTC().Hour()
	suite.createGroup(301, func(g *models.TelegramGroup) {
		g.NotificationSettings = &models.TelegramNotificationSettings{
			QuietHoursStart: hour,
			QuietHoursEnd:   (hour + 1) % 24,
		}
	})

	event := &Notification{
		Type:        models.TelegramEventPostCreated,
		CommunityID: "cg-comm-1",
		PostTitle:   "Shh",
		ActorName:   "Ada",
	}
	suite.submitAndWait(event)

	assert.Empty(suite.T(), suite.sender.messages(301))

	var group models.TelegramGroup
	require.NoError(suite.T(), suite.db.First(&group, "chat_id = ?", int64(301)).Error)
	assert.Equal(suite.T(), int64(0), group.NotificationCount)
}

func (suite *NotifierTestSuite) TestSendFailureDoesNotAbortFanOut() {
	suite.createGroup(401, nil)
	suite.createGroup(402, nil)
	suite.sender.failFor[401] = true

	event := &Notification{
		Type:        models.TelegramEventCommentCreated,
		CommunityID: "cg-comm-1",
		PostTitle:   "Flaky chat",
		ActorName:   "Ada",
	}
	suite.submitAndWait(event)

	assert.Empty(suite.T(), suite.sender.messages(401))
	assert.Len(suite.T(), suite.sender.messages(402), 1)

	var failed, delivered models.TelegramGroup
	require.NoError(suite.T(), suite.db.First(&failed, "chat_id = ?", int64(401)).Error)
	require.NoError(suite.T(), suite.db.First(&delivered, "chat_id = ?", int64(402)).Error)
	assert.Equal(suite.T(), int64(0), failed.NotificationCount)
	assert.Equal(suite.T(), int64(1), delivered.NotificationCount)
}

func (suite *NotifierTestSuite) TestMilestoneNotificationRendersCount() {
	suite.createGroup(501, nil)

	post := &models.Post{ID: 9, Title: "Popular take", UpvoteCount: 25}
	board := &models.Board{ID: 3, CommunityID: "cg-comm-1", Name: "Hot"}
	event := NewMilestoneNotification(post, board, 25)
	suite.submitAndWait(event)

	messages := suite.sender.messages(501)
	require.Len(suite.T(), messages, 1)
	assert.Contains(suite.T(), messages[0], "25 upvotes")
	assert.Contains(suite.T(), messages[0], "Popular take")
}

func (suite *NotifierTestSuite) TestTestNotificationIgnoresQuietHours() {
	hour := time.Now().UTC().Hour()
	suite.createGroup(601, func(g *models.TelegramGroup) {
		g.NotificationSettings = &models.TelegramNotificationSettings{
			QuietHoursStart: hour,
			QuietHoursEnd:   (hour + 1) % 24,
		}
	})

	event := NewTestNotification("cg-comm-1", "Ada")
	suite.submitAndWait(event)

	messages := suite.sender.messages(601)
	require.Len(suite.T(), messages, 1)
	assert.Contains(suite.T(), messages[0], "binding works")
	assert.Contains(suite.T(), messages[0], "Ada")
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}

func TestSubmitQueueFull(t *testing.T) {
	// Never started, so nothing drains the channel.
	n := NewNotifier(newFakeSender(), nil)

	for i := 0; i < 100; i++ {
		require.NoError(t, n.Submit(&Notification{Type: models.TelegramEventPostCreated}))
	}

	err := n.Submit(&Notification{Type: models.TelegramEventPostCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
