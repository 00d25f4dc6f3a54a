package activity

import (
	"context"
	"time"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/dto"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Digest categories. Each one is an independent query over content the
// caller has not seen since their last visit.
const (
	CategoryCommentsOnMyPosts         = "comments_on_my_posts"
	CategoryReactionsOnMyContent      = "reactions_on_my_content"
	CategoryNewPostsInBoards          = "new_posts_in_boards"
	CategoryCommentsOnPostsICommented = "comments_on_posts_i_commented"
)

const (
	defaultLimit = 10
	maxLimit     = 50
	previewRunes = 140
)

// Item is a single digest entry. CommentID and Emoji are only set for
// comment and reaction entries respectively.
type Item struct {
	Category  string            `json:"category"`
	PostID    int64             `json:"post_id"`
	BoardID   int64             `json:"board_id"`
	PostTitle string            `json:"post_title"`
	CommentID *int64            `json:"comment_id,omitempty"`
	Emoji     string            `json:"emoji,omitempty"`
	Preview   string            `json:"preview,omitempty"`
	Actor     *dto.UserResponse `json:"actor,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// CategoryDigest pairs the full count of new entries with a capped
// preview list, newest first.
type CategoryDigest struct {
	Count int64  `json:"count"`
	Items []Item `json:"items"`
}

// Meta echoes the resolved query window back to the caller.
type Meta struct {
	Since time.Time `json:"since"`
	Limit int       `json:"limit"`
}

// Response is the full what's-new payload.
type Response struct {
	Categories map[string]*CategoryDigest `json:"categories"`
	Meta       Meta                       `json:"meta"`
}

// Params scopes a digest query. Roles and IsAdmin come from the
// caller's session and drive board visibility filtering. Category
// restricts the digest to a single category when non-empty.
type Params struct {
	UserID      string
	CommunityID string
	Roles       []string
	IsAdmin     bool
	Since       time.Time
	Category    string
	Limit       int
}

// Service aggregates per-category queries into a what's-new digest.
type Service struct {
	db *gorm.DB
}

// NewService creates an activity service backed by the shared database.
func NewService() *Service {
	return &Service{db: database.DB}
}

// GetWhatsNew builds the digest for one user in one community. The
// category queries run in parallel; a failing category is logged and
// returned empty rather than failing the whole digest.
func (s *Service) GetWhatsNew(ctx context.Context, params Params) (*Response, error) {
	if params.Limit <= 0 {
		params.Limit = defaultLimit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	boardIDs, err := s.visibleBoardIDs(ctx, params.CommunityID, params.Roles, params.IsAdmin)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Categories: make(map[string]*CategoryDigest),
		Meta:       Meta{Since: params.Since, Limit: params.Limit},
	}

	categories := []string{
		CategoryCommentsOnMyPosts,
		CategoryReactionsOnMyContent,
		CategoryNewPostsInBoards,
		CategoryCommentsOnPostsICommented,
	}
	if params.Category != "" {
		categories = []string{params.Category}
	}

	if len(boardIDs) == 0 {
		for _, category := range categories {
			resp.Categories[category] = &CategoryDigest{Items: []Item{}}
		}
		return resp, nil
	}

	type categoryResult struct {
		category string
		digest   *CategoryDigest
		err      error
	}

	resultsChan := make(chan categoryResult, len(categories))

	for _, category := range categories {
		go func(category string) {
			digest, err := s.fetchCategory(ctx, category, params, boardIDs)
			resultsChan <- categoryResult{category: category, digest: digest, err: err}
		}(category)
	}

	for range categories {
		result := <-resultsChan
		if result.err != nil {
			logger.Log.Warn("What's-new category query failed",
				zap.String("category", result.category),
				zap.String("user_id", params.UserID),
				zap.Error(result.err))
			resp.Categories[result.category] = &CategoryDigest{Items: []Item{}}
			continue
		}
		resp.Categories[result.category] = result.digest
	}

	return resp, nil
}

func (s *Service) fetchCategory(ctx context.Context, category string, params Params, boardIDs []int64) (*CategoryDigest, error) {
	switch category {
	case CategoryCommentsOnMyPosts:
		return s.commentsOnMyPosts(ctx, params, boardIDs)
	case CategoryReactionsOnMyContent:
		return s.reactionsOnMyContent(ctx, params, boardIDs)
	case CategoryNewPostsInBoards:
		return s.newPostsInBoards(ctx, params, boardIDs)
	case CategoryCommentsOnPostsICommented:
		return s.commentsOnPostsICommented(ctx, params, boardIDs)
	default:
		return &CategoryDigest{Items: []Item{}}, nil
	}
}

// visibleBoardIDs returns the boards in the community the caller may
// read. Role gating lives in a jsonb settings blob, so the filter runs
// in Go rather than in SQL. Admins see every board.
func (s *Service) visibleBoardIDs(ctx context.Context, communityID string, roles []string, isAdmin bool) ([]int64, error) {
	var boards []models.Board
	if err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Find(&boards).Error; err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(boards))
	for _, board := range boards {
		if isAdmin || board.Settings.RoleAllowed(roles) {
			ids = append(ids, board.ID)
		}
	}
	return ids, nil
}

// commentsOnMyPosts finds comments by other users on posts the caller
// authored.
func (s *Service) commentsOnMyPosts(ctx context.Context, params Params, boardIDs []int64) (*CategoryDigest, error) {
	query := s.db.WithContext(ctx).Model(&models.Comment{}).
		Joins("JOIN posts ON posts.id = comments.post_id AND posts.deleted_at IS NULL").
		Where("posts.author_user_id = ?", params.UserID).
		Where("posts.board_id IN ?", boardIDs).
		Where("comments.author_user_id <> ?", params.UserID).
		Where("comments.created_at > ?", params.Since)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := query.
		Preload("Author").
		Preload("Post").
		Order("comments.created_at DESC").
		Limit(params.Limit).
		Find(&comments).Error; err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(comments))
	for i := range comments {
		comment := &comments[i]
		commentID := comment.ID
		items = append(items, Item{
			Category:  CategoryCommentsOnMyPosts,
			PostID:    comment.PostID,
			BoardID:   comment.Post.BoardID,
			PostTitle: comment.Post.Title,
			CommentID: &commentID,
			Preview:   preview(comment.Content),
			Actor:     dto.ToUserResponse(&comment.Author),
			CreatedAt: comment.CreatedAt,
		})
	}
	return &CategoryDigest{Count: count, Items: items}, nil
}

// reactionRow flattens a reaction with its resolved target post. A
// reaction points at either a post or a comment, so the post columns
// are coalesced across both join paths.
type reactionRow struct {
	ID           int64
	UserID       string
	Emoji        string
	CommentID    *int64
	CreatedAt    time.Time
	TargetPostID int64
	BoardID      int64
	PostTitle    string
}

// reactionsOnMyContent finds reactions by other users on posts or
// comments the caller authored. Lock reactions have no board context
// and are excluded.
func (s *Service) reactionsOnMyContent(ctx context.Context, params Params, boardIDs []int64) (*CategoryDigest, error) {
	query := s.db.WithContext(ctx).Model(&models.Reaction{}).
		Joins("LEFT JOIN posts ON posts.id = reactions.post_id AND posts.deleted_at IS NULL").
		Joins("LEFT JOIN comments ON comments.id = reactions.comment_id AND comments.deleted_at IS NULL").
		Joins("LEFT JOIN posts cp ON cp.id = comments.post_id AND cp.deleted_at IS NULL").
		Where("reactions.user_id <> ?", params.UserID).
		Where("reactions.created_at > ?", params.Since).
		Where("(posts.author_user_id = ? OR comments.author_user_id = ?)", params.UserID, params.UserID).
		Where("(posts.board_id IN ? OR cp.board_id IN ?)", boardIDs, boardIDs)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}

	var rows []reactionRow
	if err := query.
		Select("reactions.id, reactions.user_id, reactions.emoji, reactions.comment_id, reactions.created_at, " +
			"COALESCE(posts.id, cp.id) AS target_post_id, " +
			"COALESCE(posts.board_id, cp.board_id) AS board_id, " +
			"COALESCE(posts.title, cp.title) AS post_title").
		Order("reactions.created_at DESC").
		Limit(params.Limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	actors, err := s.loadActors(ctx, reactionActorIDs(rows))
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			Category:  CategoryReactionsOnMyContent,
			PostID:    row.TargetPostID,
			BoardID:   row.BoardID,
			PostTitle: row.PostTitle,
			CommentID: row.CommentID,
			Emoji:     row.Emoji,
			Actor:     actors[row.UserID],
			CreatedAt: row.CreatedAt,
		})
	}
	return &CategoryDigest{Count: count, Items: items}, nil
}

// newPostsInBoards finds posts by other users in boards the caller can
// read.
func (s *Service) newPostsInBoards(ctx context.Context, params Params, boardIDs []int64) (*CategoryDigest, error) {
	query := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("board_id IN ?", boardIDs).
		Where("author_user_id <> ?", params.UserID).
		Where("created_at > ?", params.Since)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}

	var posts []models.Post
	if err := query.
		Preload("Author").
		Order("created_at DESC").
		Limit(params.Limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(posts))
	for i := range posts {
		post := &posts[i]
		items = append(items, Item{
			Category:  CategoryNewPostsInBoards,
			PostID:    post.ID,
			BoardID:   post.BoardID,
			PostTitle: post.Title,
			Actor:     dto.ToUserResponse(&post.Author),
			CreatedAt: post.CreatedAt,
		})
	}
	return &CategoryDigest{Count: count, Items: items}, nil
}

// commentsOnPostsICommented finds new comments in threads the caller
// participated in. Posts the caller authored are excluded, those land
// in the comments_on_my_posts category instead.
func (s *Service) commentsOnPostsICommented(ctx context.Context, params Params, boardIDs []int64) (*CategoryDigest, error) {
	participated := s.db.Model(&models.Comment{}).
		Select("post_id").
		Where("author_user_id = ?", params.UserID)

	query := s.db.WithContext(ctx).Model(&models.Comment{}).
		Joins("JOIN posts ON posts.id = comments.post_id AND posts.deleted_at IS NULL").
		Where("posts.author_user_id <> ?", params.UserID).
		Where("posts.board_id IN ?", boardIDs).
		Where("comments.author_user_id <> ?", params.UserID).
		Where("comments.created_at > ?", params.Since).
		Where("comments.post_id IN (?)", participated)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := query.
		Preload("Author").
		Preload("Post").
		Order("comments.created_at DESC").
		Limit(params.Limit).
		Find(&comments).Error; err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(comments))
	for i := range comments {
		comment := &comments[i]
		commentID := comment.ID
		items = append(items, Item{
			Category:  CategoryCommentsOnPostsICommented,
			PostID:    comment.PostID,
			BoardID:   comment.Post.BoardID,
			PostTitle: comment.Post.Title,
			CommentID: &commentID,
			Preview:   preview(comment.Content),
			Actor:     dto.ToUserResponse(&comment.Author),
			CreatedAt: comment.CreatedAt,
		})
	}
	return &CategoryDigest{Count: count, Items: items}, nil
}

// loadActors fetches the given users in one query and converts them to
// response shapes keyed by ID.
func (s *Service) loadActors(ctx context.Context, userIDs []string) (map[string]*dto.UserResponse, error) {
	actors := make(map[string]*dto.UserResponse, len(userIDs))
	if len(userIDs) == 0 {
		return actors, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&users).Error; err != nil {
		return nil, err
	}

	for i := range users {
		actors[users[i].ID] = dto.ToUserResponse(&users[i])
	}
	return actors, nil
}

func reactionActorIDs(rows []reactionRow) []string {
	seen := make(map[string]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if seen[row.UserID] {
			continue
		}
		seen[row.UserID] = true
		ids = append(ids, row.UserID)
	}
	return ids
}

// preview truncates comment markdown to a short plain snippet.
func preview(content string) string {
	return util.Truncate(content, previewRunes)
}
