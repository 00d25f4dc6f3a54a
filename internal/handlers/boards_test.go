package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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

// BoardTestSuite contains board handler tests
type BoardTestSuite struct {
	suite.Suite
	db        *gorm.DB
	router    *gin.Engine
	handlers  *Handlers
	community *models.Community
	member    *models.User
	admin     *models.User
}

func (suite *BoardTestSuite) SetupSuite() {
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
	api.GET("/communities/:communityId/boards", suite.handlers.ListBoards)
	api.POST("/communities/:communityId/boards", suite.handlers.CreateBoard)
	api.GET("/communities/:communityId/boards/:boardId", suite.handlers.GetBoard)
	api.PATCH("/communities/:communityId/boards/:boardId", suite.handlers.UpdateBoard)
	api.DELETE("/communities/:communityId/boards/:boardId", suite.handlers.DeleteBoard)
	api.GET("/communities/:communityId/boards/:boardId/verification-status", suite.handlers.GetBoardVerificationStatus)
}

func (suite *BoardTestSuite) TearDownSuite() {
	if suite.db == nil {
		return
	}
	sqlDB, _ := suite.db.DB()
	sqlDB.Close()
}

func (suite *BoardTestSuite) SetupTest() {
	truncateForumTables(suite.db)
	suite.community, suite.member, suite.admin = seedCommunity(suite.T(), suite.db, "comm-boards")
}

func (suite *BoardTestSuite) boardsPath() string {
	return "/api/communities/" + suite.community.ID + "/boards"
}

func (suite *BoardTestSuite) do(method, path string, body interface{}, user *models.User, admin bool, roles string) *httptest.ResponseRecorder {
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
	if roles != "" {
		req.Header.Set("X-Roles", roles)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *BoardTestSuite) createBoard(name string, settings *models.BoardSettings) *models.Board {
	board := &models.Board{
		CommunityID: suite.community.ID,
		Name:        name,
		Slug:        name,
		Settings:    settings,
	}
	require.NoError(suite.T(), suite.db.Create(board).Error)
	return board
}

func (suite *BoardTestSuite) TestCreateBoard() {
	t := suite.T()

	body := map[string]interface{}{
		"name":        "General Discussion",
		"description": "Anything goes",
	}
	w := suite.do("POST", suite.boardsPath(), body, suite.admin, true, "")

	assert.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	board := response["board"].(map[string]interface{})
	assert.Equal(t, "General Discussion", board["name"])
	assert.Equal(t, "general-discussion", board["slug"])
}

func (suite *BoardTestSuite) TestCreateBoardDuplicateSlug() {
	t := suite.T()

	suite.createBoard("general", nil)

	body := map[string]interface{}{"name": "General"}
	w := suite.do("POST", suite.boardsPath(), body, suite.admin, true, "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func (suite *BoardTestSuite) TestCreateBoardMissingName() {
	t := suite.T()

	w := suite.do("POST", suite.boardsPath(), map[string]interface{}{}, suite.admin, true, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (suite *BoardTestSuite) TestListBoardsHidesRoleGated() {
	t := suite.T()

	suite.createBoard("open", nil)
	suite.createBoard("vip-lounge", &models.BoardSettings{
		Permissions: &models.BoardPermissions{AllowedRoles: []string{"role-vip"}},
	})

	// A plain member sees only the open board.
	w := suite.do("GET", suite.boardsPath(), nil, suite.member, false, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	boards := response["boards"].([]interface{})
	require.Len(t, boards, 1)
	assert.Equal(t, "open", boards[0].(map[string]interface{})["name"])

	// With the role, both appear.
	w = suite.do("GET", suite.boardsPath(), nil, suite.member, false, "role-vip")
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response["boards"].([]interface{}), 2)

	// Admins see everything.
	w = suite.do("GET", suite.boardsPath(), nil, suite.admin, true, "")
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response["boards"].([]interface{}), 2)
}

func (suite *BoardTestSuite) TestGetBoardRoleGatedIs404ForOutsiders() {
	t := suite.T()

	board := suite.createBoard("vip", &models.BoardSettings{
		Permissions: &models.BoardPermissions{AllowedRoles: []string{"role-vip"}},
	})
	path := fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID)

	w := suite.do("GET", path, nil, suite.member, false, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = suite.do("GET", path, nil, suite.member, false, "role-vip")
	assert.Equal(t, http.StatusOK, w.Code)
}

func (suite *BoardTestSuite) TestGetBoardAccessSummary() {
	t := suite.T()

	board := suite.createBoard("open", nil)
	w := suite.do("GET", fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID), nil, suite.member, false, "")

	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	access := response["access"].(map[string]interface{})
	assert.Equal(t, true, access["can_read"])
	assert.Equal(t, true, access["can_write"])
}

func (suite *BoardTestSuite) TestCommunityMismatchForbidden() {
	t := suite.T()

	board := suite.createBoard("open", nil)

	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/communities/other-community/boards/%d", board.ID), nil)
	req.Header.Set("X-User-ID", suite.member.ID)
	req.Header.Set("X-Community-ID", suite.community.ID)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func (suite *BoardTestSuite) TestUpdateBoardKeepsSlug() {
	t := suite.T()

	board := suite.createBoard("general", nil)

	body := map[string]interface{}{"name": "General v2"}
	w := suite.do("PATCH", fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID), body, suite.admin, true, "")

	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var updated models.Board
	require.NoError(t, suite.db.First(&updated, "id = ?", board.ID).Error)
	assert.Equal(t, "General v2", updated.Name)
	assert.Equal(t, "general", updated.Slug)
}

func (suite *BoardTestSuite) TestUpdateBoardSyncsLockUsage() {
	t := suite.T()

	lock := &models.Lock{
		CommunityID:   suite.community.ID,
		CreatorUserID: suite.admin.ID,
		Name:          "token-holders",
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

	board := suite.createBoard("gated", nil)

	body := map[string]interface{}{
		"settings": map[string]interface{}{
			"permissions": map[string]interface{}{
				"locks": map[string]interface{}{
					"lock_ids":    []int64{lock.ID},
					"fulfillment": "any",
				},
			},
		},
	}
	w := suite.do("PATCH", fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID), body, suite.admin, true, "")
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var reloaded models.Lock
	require.NoError(t, suite.db.First(&reloaded, "id = ?", lock.ID).Error)
	assert.Equal(t, 1, reloaded.UsageCount)

	// Removing the gating releases the usage slot.
	body = map[string]interface{}{
		"settings": map[string]interface{}{},
	}
	w = suite.do("PATCH", fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID), body, suite.admin, true, "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, suite.db.First(&reloaded, "id = ?", lock.ID).Error)
	assert.Equal(t, 0, reloaded.UsageCount)
}

func (suite *BoardTestSuite) TestDeleteBoardSoftDeletes() {
	t := suite.T()

	board := suite.createBoard("doomed", nil)
	w := suite.do("DELETE", fmt.Sprintf("%s/%d", suite.boardsPath(), board.ID), nil, suite.admin, true, "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "deleted", response["status"])

	var count int64
	suite.db.Model(&models.Board{}).Where("id = ?", board.ID).Count(&count)
	assert.Equal(t, int64(0), count)

	// Soft deleted, so the row survives with deleted_at set.
	var raw int64
	suite.db.Unscoped().Model(&models.Board{}).Where("id = ?", board.ID).Count(&raw)
	assert.Equal(t, int64(1), raw)
}

func (suite *BoardTestSuite) TestVerificationStatusUngatedBoard() {
	t := suite.T()

	board := suite.createBoard("open", nil)
	w := suite.do("GET", fmt.Sprintf("%s/%d/verification-status", suite.boardsPath(), board.ID), nil, suite.member, false, "")

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, false, response["gated"])
	assert.Equal(t, true, response["can_write"])
}

func (suite *BoardTestSuite) TestVerificationStatusGatedBoard() {
	t := suite.T()

	lock := &models.Lock{
		CommunityID:   suite.community.ID,
		CreatorUserID: suite.admin.ID,
		Name:          "nft-holders",
		Icon:          "🔒",
		GatingConfig: &models.GatingConfig{
			Categories: []models.GatingCategory{{
				Type:    models.CategoryEthereumProfile,
				Enabled: true,
				Requirements: []models.GatingRequirement{{
					Type:            models.RequirementERC721Owner,
					ContractAddress: "0x1111111111111111111111111111111111111111",
				}},
			}},
		},
	}
	require.NoError(t, suite.db.Create(lock).Error)

	board := suite.createBoard("gated", &models.BoardSettings{
		Permissions: &models.BoardPermissions{
			Locks: &models.LockGating{LockIDs: []int64{lock.ID}, Fulfillment: models.FulfillmentAny},
		},
	})

	w := suite.do("GET", fmt.Sprintf("%s/%d/verification-status", suite.boardsPath(), board.ID), nil, suite.member, false, "")
	assert.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, true, response["gated"])
	assert.Equal(t, false, response["can_write"])

	locks := response["locks"].([]interface{})
	require.Len(t, locks, 1)
	row := locks[0].(map[string]interface{})
	assert.Equal(t, float64(lock.ID), row["lock_id"])
	assert.Equal(t, false, row["verified"])
	assert.Equal(t, "nft-holders", row["name"])

	// A live pre-verification flips the board writable.
	require.NoError(t, suite.db.Create(&models.PreVerification{
		UserID:        suite.member.ID,
		LockID:        lock.ID,
		CategoryType:  models.CategoryEthereumProfile,
		WalletAddress: "0x2222222222222222222222222222222222222222",
		Status:        models.VerificationStatusVerified,
		VerifiedAt:    time.Now(),
		ExpiresAt:     time.Now().Add(time.Hour),
	}).Error)

	w = suite.do("GET", fmt.Sprintf("%s/%d/verification-status", suite.boardsPath(), board.ID), nil, suite.member, false, "")
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, true, response["can_write"])
}

func TestBoardSuite(t *testing.T) {
	suite.Run(t, new(BoardTestSuite))
}
