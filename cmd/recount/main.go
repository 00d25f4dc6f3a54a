package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
)

// driftRow is one cached counter that no longer matches the real count.
type driftRow struct {
	ID     int64
	Label  string
	Cached int
	Actual int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "report drift without fixing it")
	flag.Parse()

	log.Println("🔢 Recounting cached counters")
	log.Println("=============================")
	log.Println()

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Connect to database
	log.Println("🔄 Connecting to database...")
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("✅ Database connected")
	log.Println()

	total := 0
	total += recount("posts.comment_count",
		`SELECT posts.id AS id, posts.title AS label, posts.comment_count AS cached, COUNT(comments.id) AS actual
		 FROM posts LEFT JOIN comments ON comments.post_id = posts.id
		 GROUP BY posts.id HAVING posts.comment_count != COUNT(comments.id)`,
		`UPDATE posts SET comment_count = (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)`,
		*dryRun)

	total += recount("posts.upvote_count",
		`SELECT posts.id AS id, posts.title AS label, posts.upvote_count AS cached, COUNT(reactions.id) AS actual
		 FROM posts LEFT JOIN reactions ON reactions.post_id = posts.id AND reactions.emoji = ?
		 GROUP BY posts.id HAVING posts.upvote_count != COUNT(reactions.id)`,
		`UPDATE posts SET upvote_count = (SELECT COUNT(*) FROM reactions WHERE reactions.post_id = posts.id AND reactions.emoji = ?)`,
		*dryRun, models.UpvoteEmoji)

	total += recount("boards.post_count",
		`SELECT boards.id AS id, boards.name AS label, boards.post_count AS cached, COUNT(posts.id) AS actual
		 FROM boards LEFT JOIN posts ON posts.board_id = boards.id
		 GROUP BY boards.id HAVING boards.post_count != COUNT(posts.id)`,
		`UPDATE boards SET post_count = (SELECT COUNT(*) FROM posts WHERE posts.board_id = boards.id)`,
		*dryRun)

	total += recountLockUsage(*dryRun)

	log.Println()
	if total == 0 {
		log.Println("✅ All cached counters match")
	} else if *dryRun {
		log.Printf("📊 %d counters drifted (dry run, nothing changed)\n", total)
	} else {
		log.Printf("✅ Repaired %d drifted counters\n", total)
	}
}

// recount reports rows where a cached counter disagrees with the source
// table, then repairs them with a single subquery update.
func recount(name, driftQuery, fixQuery string, dryRun bool, args ...interface{}) int {
	var drifted []driftRow
	if err := database.DB.Raw(driftQuery, args...).Scan(&drifted).Error; err != nil {
		log.Fatalf("❌ Failed to check %s: %v", name, err)
	}

	if len(drifted) == 0 {
		log.Printf("✓ %s: no drift\n", name)
		return 0
	}

	log.Printf("📊 %s: %d drifted\n", name, len(drifted))
	for _, row := range drifted {
		log.Printf("  [%d] %q cached %d, actual %d\n", row.ID, row.Label, row.Cached, row.Actual)
	}

	if dryRun {
		return len(drifted)
	}

	if err := database.DB.Exec(fixQuery, args...).Error; err != nil {
		log.Fatalf("❌ Failed to repair %s: %v", name, err)
	}
	return len(drifted)
}

// recountLockUsage rebuilds locks.usage_count from the gating configs
// embedded in board and post settings. Those live in jsonb blobs, so the
// references are counted in Go rather than SQL.
func recountLockUsage(dryRun bool) int {
	usage := make(map[int64]int)

	var boards []models.Board
	if err := database.DB.Find(&boards).Error; err != nil {
		log.Fatalf("❌ Failed to load boards: %v", err)
	}
	for _, board := range boards {
		if gating := board.Settings.LockGating(); gating != nil {
			for _, lockID := range gating.LockIDs {
				usage[lockID]++
			}
		}
	}

	var posts []models.Post
	if err := database.DB.Find(&posts).Error; err != nil {
		log.Fatalf("❌ Failed to load posts: %v", err)
	}
	for _, post := range posts {
		if gating := post.Settings.CommentGating(); gating != nil {
			for _, lockID := range gating.LockIDs {
				usage[lockID]++
			}
		}
	}

	var locks []models.Lock
	if err := database.DB.Find(&locks).Error; err != nil {
		log.Fatalf("❌ Failed to load locks: %v", err)
	}

	drifted := 0
	for _, lock := range locks {
		actual := usage[lock.ID]
		if lock.UsageCount == actual {
			continue
		}
		if drifted == 0 {
			log.Println("📊 locks.usage_count drift:")
		}
		drifted++
		log.Printf("  [%d] %q cached %d, actual %d\n", lock.ID, lock.Name, lock.UsageCount, actual)

		if !dryRun {
			if err := database.DB.Model(&models.Lock{}).Where("id = ?", lock.ID).
				Update("usage_count", actual).Error; err != nil {
				log.Fatalf("❌ Failed to repair lock %d: %v", lock.ID, err)
			}
		}
	}
	if drifted == 0 {
		log.Println("✓ locks.usage_count: no drift")
	}
	return drifted
}
