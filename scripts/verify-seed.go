package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize database connection
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	fmt.Println("🔍 Verifying seed data...")
	fmt.Println()

	// Count records
	var userCount, communityCount, boardCount, postCount, commentCount, reactionCount, lockCount, verificationCount int64

	database.DB.Model(&models.User{}).Count(&userCount)
	database.DB.Model(&models.Community{}).Count(&communityCount)
	database.DB.Model(&models.Board{}).Count(&boardCount)
	database.DB.Model(&models.Post{}).Count(&postCount)
	database.DB.Model(&models.Comment{}).Count(&commentCount)
	database.DB.Model(&models.Reaction{}).Count(&reactionCount)
	database.DB.Model(&models.Lock{}).Count(&lockCount)
	database.DB.Model(&models.PreVerification{}).Count(&verificationCount)

	fmt.Println("📊 Record Counts:")
	fmt.Printf("  Users:             %d\n", userCount)
	fmt.Printf("  Communities:       %d\n", communityCount)
	fmt.Printf("  Boards:            %d\n", boardCount)
	fmt.Printf("  Posts:             %d\n", postCount)
	fmt.Printf("  Comments:          %d\n", commentCount)
	fmt.Printf("  Reactions:         %d\n", reactionCount)
	fmt.Printf("  Locks:             %d\n", lockCount)
	fmt.Printf("  Pre-verifications: %d\n", verificationCount)
	fmt.Println()

	// Sample data
	fmt.Println("📝 Sample Data:")
	fmt.Println()

	// Sample communities
	var communities []models.Community
	database.DB.Limit(3).Find(&communities)
	fmt.Println("  Sample Communities:")
	for _, community := range communities {
		var memberCount int64
		database.DB.Model(&models.UserCommunity{}).
			Where("community_id = ?", community.ID).Count(&memberCount)
		fmt.Printf("    - %s (%s) - %d members\n", community.Name, community.CommunityShortID, memberCount)
	}
	fmt.Println()

	// Sample posts
	var posts []models.Post
	database.DB.Order("upvote_count DESC").Limit(3).Find(&posts)
	fmt.Println("  Sample Posts:")
	for _, p := range posts {
		fmt.Printf("    - %s - 👍 %d, 💬 %d, tags: %v\n", p.Title, p.UpvoteCount, p.CommentCount, []string(p.Tags))
	}
	fmt.Println()

	// Sample locks
	var locks []models.Lock
	database.DB.Limit(3).Find(&locks)
	fmt.Println("  Sample Locks:")
	for _, lock := range locks {
		categories := 0
		if lock.GatingConfig != nil {
			categories = len(lock.GatingConfig.Categories)
		}
		fmt.Printf("    - %s %s - %d categories, used by %d boards/posts\n",
			lock.Icon, lock.Name, categories, lock.UsageCount)
	}
	fmt.Println()

	// Verify relationships
	fmt.Println("🔗 Relationship Verification:")
	var postWithAuthor models.Post
	database.DB.Preload("Author").First(&postWithAuthor)
	if postWithAuthor.Author.ID != "" {
		fmt.Printf("  ✅ Posts have author relationships\n")
	}

	var commentWithPost models.Comment
	database.DB.Preload("Post").First(&commentWithPost)
	if commentWithPost.Post.ID != 0 {
		fmt.Printf("  ✅ Comments have post relationships\n")
	}

	var boardWithCommunity models.Board
	database.DB.Preload("Community").First(&boardWithCommunity)
	if boardWithCommunity.Community.ID != "" {
		fmt.Printf("  ✅ Boards have community relationships\n")
	}

	// Counter caches should match reality
	var actualComments int64
	database.DB.Model(&models.Comment{}).Where("post_id = ?", postWithAuthor.ID).Count(&actualComments)
	if actualComments == int64(postWithAuthor.CommentCount) {
		fmt.Printf("  ✅ Comment counter cache matches (%d)\n", actualComments)
	} else {
		fmt.Printf("  ⚠️  Comment counter cache off: cached %d, actual %d\n", postWithAuthor.CommentCount, actualComments)
	}
	fmt.Println()

	// Export sample data as JSON for API testing
	if len(os.Args) > 1 && os.Args[1] == "--json" {
		var sampleUser models.User
		database.DB.First(&sampleUser)
		sampleData := map[string]interface{}{
			"user_id":      sampleUser.ID,
			"community_id": communities[0].ID,
			"post_id":      posts[0].ID,
		}
		jsonData, _ := json.MarshalIndent(sampleData, "", "  ")
		fmt.Println("📋 Sample IDs for API testing:")
		fmt.Println(string(jsonData))
	}

	fmt.Println("✅ Seed data verification complete!")
}
