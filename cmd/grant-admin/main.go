package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/models"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Parse command-line flags
	userID := flag.String("user", "", "User ID to grant the community admin role")
	communityID := flag.String("community", "", "Community the grant applies to")
	revoke := flag.Bool("revoke", false, "Revoke the admin role instead of granting")
	flag.Parse()

	if *userID == "" || *communityID == "" {
		fmt.Println("Usage: go run cmd/grant-admin/main.go -user=cg-user-123 -community=cg-comm-456")
		fmt.Println("       go run cmd/grant-admin/main.go -user=cg-user-123 -community=cg-comm-456 -revoke")
		return
	}

	// Initialize database
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer database.Close()

	db := database.DB
	if db == nil {
		log.Fatal("Failed to get database connection")
	}

	// Admin rights live on the membership row, not the user
	var membership models.UserCommunity
	result := db.Where("user_id = ? AND community_id = ?", *userID, *communityID).First(&membership)
	if result.Error != nil {
		fmt.Printf("❌ Membership not found: %s in %s\n", *userID, *communityID)
		return
	}

	if *revoke {
		if membership.Role != models.RoleAdmin {
			fmt.Printf("⚠️  User %s is not an admin of %s (role: %s)\n", *userID, *communityID, membership.Role)
			return
		}

		membership.Role = models.RoleMember
		if err := db.Save(&membership).Error; err != nil {
			fmt.Printf("❌ Failed to revoke admin role: %v\n", err)
			return
		}

		fmt.Printf("✓ Admin role revoked for %s in %s\n", *userID, *communityID)
	} else {
		if models.IsAdminRole(membership.Role) {
			fmt.Printf("⚠️  User %s already administers %s (role: %s)\n", *userID, *communityID, membership.Role)
			return
		}

		membership.Role = models.RoleAdmin
		if err := db.Save(&membership).Error; err != nil {
			fmt.Printf("❌ Failed to grant admin role: %v\n", err)
			return
		}

		fmt.Printf("✓ Admin role granted to %s in %s\n", *userID, *communityID)
		fmt.Printf("  Takes effect when the user next refreshes their session\n")
	}
}
