package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/util"
)

// Seeder fills the database with realistic forum fixtures.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed random generator; time.Now().UnixNano() is always a valid source
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev seeds the development database with realistic data.
func (s *Seeder) SeedDev() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(40)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating communities...")
	communities, err := s.seedCommunities(3)
	if err != nil {
		return fmt.Errorf("failed to seed communities: %w", err)
	}

	log("Creating memberships...")
	members, err := s.seedMemberships(users, communities)
	if err != nil {
		return fmt.Errorf("failed to seed memberships: %w", err)
	}

	log("Creating locks...")
	locks, err := s.seedLocks(communities, members)
	if err != nil {
		return fmt.Errorf("failed to seed locks: %w", err)
	}

	log("Creating boards...")
	boards, err := s.seedBoards(communities, locks)
	if err != nil {
		return fmt.Errorf("failed to seed boards: %w", err)
	}

	log("Creating posts...")
	posts, err := s.seedPosts(boards, members, 150)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	log("Creating comments...")
	comments, err := s.seedComments(posts, members, 400)
	if err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating reactions...")
	if err := s.seedReactions(posts, comments, locks, members, 600); err != nil {
		return fmt.Errorf("failed to seed reactions: %w", err)
	}

	log("Creating pre-verifications...")
	if err := s.seedPreVerifications(locks, members); err != nil {
		return fmt.Errorf("failed to seed pre-verifications: %w", err)
	}

	log("Creating telegram group binding...")
	if err := s.seedTelegramGroup(communities[0], members[communities[0].ID]); err != nil {
		return fmt.Errorf("failed to seed telegram group: %w", err)
	}

	log("Seed complete")
	return nil
}

// SeedTest seeds a small fixed fixture set for end-to-end tests.
func (s *Seeder) SeedTest() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating test users...")
	testUserSpecs := []struct {
		id   string
		name string
	}{
		{"cg-user-alice", "Alice Smith"},
		{"cg-user-bob", "Bob Johnson"},
		{"cg-user-charlie", "Charlie Brown"},
		{"cg-user-diana", "Diana Prince"},
	}

	var users []models.User
	for _, spec := range testUserSpecs {
		var user models.User
		err := s.db.First(&user, "id = ?", spec.id).Error
		if err == nil {
			users = append(users, user)
			continue
		}

		wallet := randomAddress()
		user = models.User{
			ID:                spec.id,
			Name:              spec.name,
			ProfilePictureURL: fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", spec.id),
			WalletAddress:     &wallet,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", spec.id, err)
		}
		users = append(users, user)
	}

	log("Creating test community...")
	community := models.Community{
		ID:               "cg-comm-test",
		Name:             "Test Commons",
		CommunityShortID: "test-commons",
		PluginID:         "plugin-test",
	}
	if err := s.db.FirstOrCreate(&community, models.Community{ID: community.ID}).Error; err != nil {
		return fmt.Errorf("failed to create test community: %w", err)
	}

	now := time.Now()
	roles := []string{models.RoleOwner, models.RoleAdmin, models.RoleMember, models.RoleMember}
	for i, user := range users {
		membership := models.UserCommunity{
			UserID:         user.ID,
			CommunityID:    community.ID,
			Role:           roles[i],
			FirstVisitedAt: now.AddDate(0, -1, 0),
			LastVisitedAt:  now,
			VisitCount:     i + 1,
		}
		err := s.db.Where("user_id = ? AND community_id = ?", user.ID, community.ID).
			FirstOrCreate(&membership).Error
		if err != nil {
			return fmt.Errorf("failed to create test membership: %w", err)
		}
	}
	members := map[string][]models.User{community.ID: users}

	log("Creating test lock and boards...")
	lock := models.Lock{
		CommunityID:   community.ID,
		CreatorUserID: users[0].ID,
		Name:          "ETH Holder",
		Description:   "Hold at least one ether",
		Icon:          "💎",
		Color:         "#627eea",
		GatingConfig:  ethBalanceConfig("1000000000000000000"),
	}
	err := s.db.Where("community_id = ? AND name = ?", community.ID, lock.Name).
		FirstOrCreate(&lock).Error
	if err != nil {
		return fmt.Errorf("failed to create test lock: %w", err)
	}

	boards, err := s.seedBoards([]models.Community{community}, map[string][]models.Lock{
		community.ID: {lock},
	})
	if err != nil {
		return fmt.Errorf("failed to seed test boards: %w", err)
	}

	log("Creating test posts and comments...")
	posts, err := s.seedPosts(boards, members, 5)
	if err != nil {
		return fmt.Errorf("failed to seed test posts: %w", err)
	}
	if _, err := s.seedComments(posts, members, 10); err != nil {
		return fmt.Errorf("failed to seed test comments: %w", err)
	}

	log("Creating test pre-verification...")
	pv := models.PreVerification{
		UserID:        users[1].ID,
		LockID:        lock.ID,
		CategoryType:  models.CategoryEthereumProfile,
		WalletAddress: *users[1].WalletAddress,
		Status:        models.VerificationStatusVerified,
		VerifiedAt:    now,
		ExpiresAt:     now.Add(4 * time.Hour),
	}
	err = s.db.Where("user_id = ? AND lock_id = ? AND category_type = ?",
		pv.UserID, pv.LockID, pv.CategoryType).
		FirstOrCreate(&pv).Error
	if err != nil {
		return fmt.Errorf("failed to create test pre-verification: %w", err)
	}

	return nil
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean() error {
	// Delete in reverse order of dependencies
	tables := []string{
		"pre_verifications",
		"reactions",
		"comments",
		"posts",
		"locks",
		"telegram_groups",
		"boards",
		"user_friends",
		"user_communities",
		"communities",
		"users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

// seedUsers creates host-style users with mixed wallet links.
func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	var users []models.User

	// Re-running the seeder should not multiply users
	var seedUserCount int64
	s.db.Model(&models.User{}).Where("id LIKE 'seed-user-%'").Count(&seedUserCount)
	if seedUserCount >= int64(count) {
		if err := s.db.Where("id LIKE 'seed-user-%'").Find(&users).Error; err != nil {
			return nil, err
		}
		logger.Log.Info("Found existing seed users, skipping creation",
			zap.Int("total_users", len(users)))
		return users, nil
	}

	for i := 0; i < count; i++ {
		user := models.User{
			ID:                fmt.Sprintf("seed-user-%s", gofakeit.UUID()),
			Name:              gofakeit.Name(),
			ProfilePictureURL: fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", gofakeit.Username()),
			IsOnline:          rand.Float32() < 0.2,
		}

		// Most users carry an EVM wallet, some a Universal Profile too
		if rand.Float32() < 0.7 {
			addr := randomAddress()
			user.WalletAddress = &addr
		}
		if rand.Float32() < 0.3 {
			addr := randomAddress()
			user.LuksoAddress = &addr
		}

		lastActive := gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now())
		user.LastActiveAt = &lastActive

		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}

	logger.Log.Info("Created seed users", zap.Int("count", len(users)))
	return users, nil
}

// seedCommunities creates communities with host identifiers.
func (s *Seeder) seedCommunities(count int) ([]models.Community, error) {
	names := []string{
		"Lighthouse DAO",
		"Nebula Collective",
		"Block Gardeners",
		"Protocol Commons",
		"Orbit Guild",
	}
	if count > len(names) {
		count = len(names)
	}

	var communities []models.Community
	for i := 0; i < count; i++ {
		name := names[i]
		slug := util.Slugify(name)
		community := models.Community{
			ID:               "seed-comm-" + slug,
			Name:             name,
			CommunityShortID: slug,
			PluginID:         "plugin-" + gofakeit.UUID(),
			LogoURL:          fmt.Sprintf("https://api.dicebear.com/7.x/shapes/png?seed=%s", slug),
		}
		if i == 0 {
			community.Settings = &models.CommunitySettings{
				Background: &models.BackgroundSettings{
					ImageURL: fmt.Sprintf("https://picsum.photos/seed/%s/1600/900", slug),
					Size:     "cover",
					Opacity:  0.35,
				},
			}
		}

		err := s.db.Where("id = ?", community.ID).FirstOrCreate(&community).Error
		if err != nil {
			return nil, fmt.Errorf("failed to create community %s: %w", name, err)
		}
		communities = append(communities, community)
	}

	logger.Log.Info("Created communities", zap.Int("count", len(communities)))
	return communities, nil
}

// seedMemberships joins users to communities with rotated leadership so
// every community gets an owner, admins and a moderator. Returns members
// per community for later content assignment.
func (s *Seeder) seedMemberships(users []models.User, communities []models.Community) (map[string][]models.User, error) {
	members := make(map[string][]models.User, len(communities))
	now := time.Now()

	for offset, community := range communities {
		for i := range users {
			user := users[(i+offset*7)%len(users)]

			role := models.RoleMember
			switch i {
			case 0:
				role = models.RoleOwner
			case 1, 2:
				role = models.RoleAdmin
			case 3:
				role = models.RoleModerator
			default:
				// Members join roughly two thirds of communities
				if rand.Float32() > 0.66 {
					continue
				}
			}

			firstVisit := gofakeit.DateRange(now.AddDate(0, -3, 0), now.AddDate(0, 0, -7))
			membership := models.UserCommunity{
				UserID:         user.ID,
				CommunityID:    community.ID,
				Role:           role,
				FirstVisitedAt: firstVisit,
				LastVisitedAt:  gofakeit.DateRange(firstVisit, now),
				VisitCount:     rand.Intn(50) + 1,
			}
			err := s.db.Where("user_id = ? AND community_id = ?", user.ID, community.ID).
				FirstOrCreate(&membership).Error
			if err != nil {
				return nil, fmt.Errorf("failed to create membership: %w", err)
			}
			members[community.ID] = append(members[community.ID], user)
		}
	}

	logger.Log.Info("Created memberships", zap.Int("communities", len(communities)))
	return members, nil
}

// seedLocks creates realistic gating configs in every community.
func (s *Seeder) seedLocks(communities []models.Community, members map[string][]models.User) (map[string][]models.Lock, error) {
	lockSpecs := []struct {
		name        string
		description string
		icon        string
		color       string
		template    bool
		config      *models.GatingConfig
	}{
		{
			name:        "ETH Holder",
			description: "Hold at least one ether",
			icon:        "💎",
			color:       "#627eea",
			config:      ethBalanceConfig("1000000000000000000"),
		},
		{
			name:        "LINK Whale",
			description: "Ten LINK or more in the linked wallet",
			icon:        "🔗",
			color:       "#2a5ada",
			config: erc20Config(
				"0x514910771AF9Ca656af840dff83E8264EcF986CA",
				"10000000000000000000", "Chainlink", "LINK",
			),
		},
		{
			name:        "Ape Owner",
			description: "Owns at least one Bored Ape",
			icon:        "🐵",
			color:       "#f5a623",
			template:    true,
			config: erc721Config(
				"0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D",
				"Bored Ape Yacht Club", "BAYC",
			),
		},
		{
			name:        "Profile Verified",
			description: "A Universal Profile holding ten LYX",
			icon:        "🆙",
			color:       "#fe005b",
			config:      lyxBalanceConfig("10000000000000000000"),
		},
	}

	locks := make(map[string][]models.Lock, len(communities))
	for _, community := range communities {
		communityMembers := members[community.ID]
		if len(communityMembers) == 0 {
			continue
		}

		for _, spec := range lockSpecs {
			// Locks are created by community leadership
			creator := communityMembers[rand.Intn(3)]
			lock := models.Lock{
				CommunityID:   community.ID,
				CreatorUserID: creator.ID,
				Name:          spec.name,
				Description:   spec.description,
				Icon:          spec.icon,
				Color:         spec.color,
				IsTemplate:    spec.template,
				IsPublic:      true,
				GatingConfig:  spec.config,
			}
			err := s.db.Where("community_id = ? AND name = ?", community.ID, spec.name).
				FirstOrCreate(&lock).Error
			if err != nil {
				return nil, fmt.Errorf("failed to create lock %s: %w", spec.name, err)
			}
			locks[community.ID] = append(locks[community.ID], lock)
		}
	}

	logger.Log.Info("Created locks", zap.Int("communities", len(locks)))
	return locks, nil
}

// seedBoards creates the standard board mix per community: open boards,
// a role-gated announcements board and a lock-gated one.
func (s *Seeder) seedBoards(communities []models.Community, locks map[string][]models.Lock) ([]models.Board, error) {
	var boards []models.Board

	for _, community := range communities {
		specs := []struct {
			name        string
			description string
			settings    *models.BoardSettings
		}{
			{"General", "Anything and everything", nil},
			{"Introductions", "Say hi and tell us what you build", nil},
			{
				"Announcements",
				"Official updates from the core team",
				&models.BoardSettings{Permissions: &models.BoardPermissions{
					AllowedRoles: []string{"role-core-team"},
				}},
			},
		}

		if communityLocks := locks[community.ID]; len(communityLocks) > 0 {
			gating := &models.LockGating{
				LockIDs:              []int64{communityLocks[0].ID},
				Fulfillment:          models.FulfillmentAny,
				VerificationDuration: 12,
			}
			if len(communityLocks) > 1 {
				gating.LockIDs = append(gating.LockIDs, communityLocks[1].ID)
			}
			specs = append(specs, struct {
				name        string
				description string
				settings    *models.BoardSettings
			}{
				"Token Talk",
				"Gated discussions for verified holders",
				&models.BoardSettings{Permissions: &models.BoardPermissions{Locks: gating}},
			})
		}

		for _, spec := range specs {
			board := models.Board{
				CommunityID: community.ID,
				Name:        spec.name,
				Slug:        util.Slugify(spec.name),
				Description: spec.description,
				Settings:    spec.settings,
			}
			err := s.db.Where("community_id = ? AND slug = ?", community.ID, board.Slug).
				FirstOrCreate(&board).Error
			if err != nil {
				return nil, fmt.Errorf("failed to create board %s: %w", spec.name, err)
			}
			boards = append(boards, board)

			// Keep lock usage counters honest
			if gating := board.Settings.LockGating(); gating != nil {
				err := s.db.Model(&models.Lock{}).
					Where("id IN ?", gating.LockIDs).
					Update("usage_count", gorm.Expr("usage_count + 1")).Error
				if err != nil {
					return nil, fmt.Errorf("failed to bump lock usage: %w", err)
				}
			}
		}
	}

	logger.Log.Info("Created boards", zap.Int("count", len(boards)))
	return boards, nil
}

// seedPosts spreads posts over the boards with tags and backdated
// timestamps. Counter caches start at zero and are bumped as comments
// and reactions land.
func (s *Seeder) seedPosts(boards []models.Board, members map[string][]models.User, count int) ([]models.Post, error) {
	var posts []models.Post
	if len(boards) == 0 {
		return posts, nil
	}

	titleTemplates := []string{
		"What's everyone building this week?",
		"Proposal: tighten the treasury policy",
		"Best wallet for daily use?",
		"Token gating rollout feedback",
		"Community call notes",
		"Show and tell: my latest mint",
		"Onboarding friction, let's fix it",
		"Weekly governance digest",
		"Who's going to the meetup?",
	}
	tagPool := []string{
		"governance", "token-gating", "events", "dev", "design",
		"defi", "nft", "dao", "intro", "help",
	}

	for i := 0; i < count; i++ {
		board := boards[rand.Intn(len(boards))]
		communityMembers := members[board.CommunityID]
		if len(communityMembers) == 0 {
			continue
		}
		author := communityMembers[rand.Intn(len(communityMembers))]

		var title string
		if rand.Float32() < 0.6 {
			title = titleTemplates[rand.Intn(len(titleTemplates))]
		} else {
			title = "Hot take: " + gofakeit.HipsterSentence()
		}

		var content strings.Builder
		for p := 0; p < 2+rand.Intn(3); p++ {
			if p > 0 {
				content.WriteString("\n\n")
			}
			content.WriteString(gofakeit.HipsterSentence())
		}

		tagCount := rand.Intn(4)
		tags := make(models.StringArray, 0, tagCount)
		seen := make(map[string]bool)
		for len(tags) < tagCount {
			tag := tagPool[rand.Intn(len(tagPool))]
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}

		createdAt := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())
		post := models.Post{
			BoardID:      board.ID,
			AuthorUserID: author.ID,
			Title:        title,
			Content:      content.String(),
			Tags:         tags,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		if err := s.db.Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}
		posts = append(posts, post)

		err := s.db.Model(&models.Board{}).
			Where("id = ?", board.ID).
			Update("post_count", gorm.Expr("post_count + 1")).Error
		if err != nil {
			return nil, fmt.Errorf("failed to bump board post count: %w", err)
		}
	}

	logger.Log.Info("Created posts", zap.Int("count", len(posts)))
	return posts, nil
}

// seedComments mixes top-level comments and replies.
func (s *Seeder) seedComments(posts []models.Post, members map[string][]models.User, count int) ([]models.Comment, error) {
	var comments []models.Comment
	if len(posts) == 0 {
		return comments, nil
	}

	commentTemplates := []string{
		"Strong agree, let's ship it",
		"Can someone link the previous discussion?",
		"This deserves its own board honestly",
		"+1, been asking for this for weeks",
		"What would this cost the treasury?",
		"Love it 🔥",
		"Following, keep us posted",
		"Tried this last month, happy to share notes",
	}

	communityByBoard := make(map[int64]string)
	topLevelByPost := make(map[int64][]models.Comment)

	for i := 0; i < count; i++ {
		post := posts[rand.Intn(len(posts))]

		communityID, ok := communityByBoard[post.BoardID]
		if !ok {
			var board models.Board
			if err := s.db.First(&board, post.BoardID).Error; err != nil {
				return nil, fmt.Errorf("failed to load board for comment: %w", err)
			}
			communityID = board.CommunityID
			communityByBoard[post.BoardID] = communityID
		}
		communityMembers := members[communityID]
		if len(communityMembers) == 0 {
			continue
		}
		author := communityMembers[rand.Intn(len(communityMembers))]

		var content string
		if rand.Float32() < 0.5 {
			content = commentTemplates[rand.Intn(len(commentTemplates))]
		} else {
			content = gofakeit.HipsterSentence()
		}

		comment := models.Comment{
			PostID:       post.ID,
			AuthorUserID: author.ID,
			Content:      content,
			IsEdited:     rand.Float32() < 0.1,
		}

		// A third of comments reply to an existing thread on the post
		if parents := topLevelByPost[post.ID]; len(parents) > 0 && rand.Float32() < 0.3 {
			parent := parents[rand.Intn(len(parents))]
			comment.ParentCommentID = &parent.ID
		}

		createdAt := gofakeit.DateRange(post.CreatedAt, time.Now())
		comment.CreatedAt = createdAt
		comment.UpdatedAt = createdAt
		if comment.IsEdited {
			editedAt := gofakeit.DateRange(createdAt, time.Now())
			comment.EditedAt = &editedAt
		}

		if err := s.db.Create(&comment).Error; err != nil {
			return nil, fmt.Errorf("failed to create comment: %w", err)
		}
		comments = append(comments, comment)
		if comment.ParentCommentID == nil {
			topLevelByPost[post.ID] = append(topLevelByPost[post.ID], comment)
		}

		err := s.db.Model(&models.Post{}).
			Where("id = ?", post.ID).
			Update("comment_count", gorm.Expr("comment_count + 1")).Error
		if err != nil {
			return nil, fmt.Errorf("failed to bump comment count: %w", err)
		}
	}

	logger.Log.Info("Created comments", zap.Int("count", len(comments)))
	return comments, nil
}

// seedReactions spreads emoji over posts, comments and locks while
// respecting the one-target rule and per-user uniqueness. Upvotes feed
// the post counter cache the same way the API does.
func (s *Seeder) seedReactions(posts []models.Post, comments []models.Comment, locks map[string][]models.Lock, members map[string][]models.User, count int) error {
	if len(posts) == 0 {
		return nil
	}

	emojis := []string{models.UpvoteEmoji, "🎉", "🔥", "❤️", "😂", "🚀"}

	var allLocks []models.Lock
	for _, communityLocks := range locks {
		allLocks = append(allLocks, communityLocks...)
	}
	var allMembers []models.User
	for _, communityMembers := range members {
		allMembers = append(allMembers, communityMembers...)
	}
	if len(allMembers) == 0 {
		return nil
	}

	created := 0
	for i := 0; i < count; i++ {
		user := allMembers[rand.Intn(len(allMembers))]
		reaction := models.Reaction{
			UserID: user.ID,
			Emoji:  emojis[rand.Intn(len(emojis))],
		}

		roll := rand.Float32()
		switch {
		case roll < 0.6 || len(comments) == 0:
			post := posts[rand.Intn(len(posts))]
			reaction.PostID = &post.ID
		case roll < 0.9:
			comment := comments[rand.Intn(len(comments))]
			reaction.CommentID = &comment.ID
		default:
			if len(allLocks) == 0 {
				continue
			}
			lock := allLocks[rand.Intn(len(allLocks))]
			reaction.LockID = &lock.ID
		}

		// The unique indexes make duplicates an error, so check first
		query := s.db.Where("user_id = ? AND emoji = ?", reaction.UserID, reaction.Emoji)
		switch {
		case reaction.PostID != nil:
			query = query.Where("post_id = ?", *reaction.PostID)
		case reaction.CommentID != nil:
			query = query.Where("comment_id = ?", *reaction.CommentID)
		default:
			query = query.Where("lock_id = ?", *reaction.LockID)
		}
		var existing models.Reaction
		if err := query.First(&existing).Error; err == nil {
			continue
		}

		if err := s.db.Create(&reaction).Error; err != nil {
			return fmt.Errorf("failed to create reaction: %w", err)
		}
		created++

		if reaction.PostID != nil && reaction.Emoji == models.UpvoteEmoji {
			err := s.db.Model(&models.Post{}).
				Where("id = ?", *reaction.PostID).
				Update("upvote_count", gorm.Expr("upvote_count + 1")).Error
			if err != nil {
				return fmt.Errorf("failed to bump upvote count: %w", err)
			}
		}
	}

	logger.Log.Info("Created reactions", zap.Int("count", created))
	return nil
}

// seedPreVerifications gives some holders fresh verifications and leaves
// others with expired ones.
func (s *Seeder) seedPreVerifications(locks map[string][]models.Lock, members map[string][]models.User) error {
	now := time.Now()
	created := 0

	for communityID, communityLocks := range locks {
		communityMembers := members[communityID]

		for _, lock := range communityLocks {
			category := firstEnabledCategory(lock.GatingConfig)
			if category == nil {
				continue
			}

			verified := 0
			for _, member := range communityMembers {
				if verified >= 3 {
					break
				}
				wallet := walletForCategory(&member, category.Type)
				if wallet == "" {
					continue
				}
				verified++

				pv := models.PreVerification{
					UserID:           member.ID,
					LockID:           lock.ID,
					CategoryType:     category.Type,
					WalletAddress:    wallet,
					VerificationData: fakeCheckResults(category),
				}
				if rand.Float32() < 0.7 {
					pv.Status = models.VerificationStatusVerified
					pv.VerifiedAt = gofakeit.DateRange(now.Add(-3*time.Hour), now)
					pv.ExpiresAt = now.Add(time.Duration(1+rand.Intn(24)) * time.Hour)
				} else {
					pv.Status = models.VerificationStatusExpired
					pv.VerifiedAt = gofakeit.DateRange(now.AddDate(0, 0, -5), now.AddDate(0, 0, -2))
					pv.ExpiresAt = pv.VerifiedAt.Add(4 * time.Hour)
				}

				err := s.db.Where("user_id = ? AND lock_id = ? AND category_type = ?",
					pv.UserID, pv.LockID, pv.CategoryType).
					FirstOrCreate(&pv).Error
				if err != nil {
					return fmt.Errorf("failed to create pre-verification: %w", err)
				}
				created++
			}
		}
	}

	logger.Log.Info("Created pre-verifications", zap.Int("count", created))
	return nil
}

// seedTelegramGroup binds one Telegram group to the community.
func (s *Seeder) seedTelegramGroup(community models.Community, communityMembers []models.User) error {
	if len(communityMembers) == 0 {
		return nil
	}

	group := models.TelegramGroup{
		ChatID:               -1001000000000 - rand.Int63n(899999999),
		CommunityID:          community.ID,
		ChatTitle:            community.Name + " HQ",
		RegisteredByUserID:   communityMembers[0].ID,
		NotificationsEnabled: true,
		IsActive:             true,
	}
	err := s.db.Where("community_id = ?", community.ID).FirstOrCreate(&group).Error
	if err != nil {
		return fmt.Errorf("failed to create telegram group: %w", err)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// randomAddress produces a plausible 0x wallet address.
func randomAddress() string {
	b := make([]byte, 40)
	for i := range b {
		b[i] = hexDigits[rand.Intn(len(hexDigits))]
	}
	return "0x" + string(b)
}

func firstEnabledCategory(config *models.GatingConfig) *models.GatingCategory {
	if config == nil {
		return nil
	}
	for i := range config.Categories {
		if config.Categories[i].Enabled {
			return &config.Categories[i]
		}
	}
	return nil
}

// walletForCategory picks the member wallet matching the category's
// ecosystem, empty when the user has none.
func walletForCategory(user *models.User, categoryType string) string {
	if categoryType == models.CategoryUniversalProfile {
		if user.LuksoAddress != nil {
			return *user.LuksoAddress
		}
		return ""
	}
	if user.WalletAddress != nil {
		return *user.WalletAddress
	}
	return ""
}

// fakeCheckResults shapes verification data after what the evaluator
// stores: one entry per requirement, all satisfied.
func fakeCheckResults(category *models.GatingCategory) map[string]interface{} {
	checks := make([]map[string]interface{}, 0, len(category.Requirements))
	for _, req := range category.Requirements {
		required := req.MinAmount
		if required == "" {
			required = "1"
		}
		checks = append(checks, map[string]interface{}{
			"type":             req.Type,
			"contract_address": req.ContractAddress,
			"required":         required,
			"actual":           required,
			"satisfied":        true,
		})
	}
	return map[string]interface{}{"checks": checks}
}

func ethBalanceConfig(minWei string) *models.GatingConfig {
	return &models.GatingConfig{
		Categories: []models.GatingCategory{{
			Type:    models.CategoryEthereumProfile,
			Enabled: true,
			Requirements: []models.GatingRequirement{{
				Type:      models.RequirementNativeBalance,
				MinAmount: minWei,
				Name:      "Ether",
				Symbol:    "ETH",
			}},
		}},
	}
}

func erc20Config(contract, minAmount, name, symbol string) *models.GatingConfig {
	return &models.GatingConfig{
		Categories: []models.GatingCategory{{
			Type:    models.CategoryEthereumProfile,
			Enabled: true,
			Requirements: []models.GatingRequirement{{
				Type:            models.RequirementERC20Balance,
				ContractAddress: contract,
				MinAmount:       minAmount,
				Name:            name,
				Symbol:          symbol,
			}},
		}},
	}
}

func erc721Config(contract, name, symbol string) *models.GatingConfig {
	return &models.GatingConfig{
		Categories: []models.GatingCategory{{
			Type:    models.CategoryEthereumProfile,
			Enabled: true,
			Requirements: []models.GatingRequirement{{
				Type:            models.RequirementERC721Owner,
				ContractAddress: contract,
				Name:            name,
				Symbol:          symbol,
			}},
		}},
		VerificationDuration: 24,
	}
}

func lyxBalanceConfig(minWei string) *models.GatingConfig {
	return &models.GatingConfig{
		Categories: []models.GatingCategory{{
			Type:    models.CategoryUniversalProfile,
			Enabled: true,
			Requirements: []models.GatingRequirement{{
				Type:      models.RequirementNativeBalance,
				MinAmount: minWei,
				Name:      "LYX",
				Symbol:    "LYX",
			}},
		}},
	}
}
