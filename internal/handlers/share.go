package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/metrics"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/share"
	"github.com/flotob/curia-sub002/internal/util"
)

const (
	sharedContentCookie = "shared_content_token"
	sharedContentMaxAge = 7 * 24 * 60 * 60 // seconds
)

// SharePost mints a public share URL for a post. The URL works without
// a session; it lands on ResolveShareURL and bounces into the host
// platform iframe.
// POST /api/posts/:postId/share
func (h *Handlers) SharePost(c *gin.Context) {
	postID, err := util.ParseID(c.Param("postId"))
	if err != nil {
		util.RespondBadRequest(c, "invalid post id")
		return
	}
	post, board, ok := loadAccessiblePost(c, postID)
	if !ok {
		return
	}

	var community models.Community
	if err := database.DB.First(&community, "id = ?", board.CommunityID).Error; err != nil {
		util.RespondInternalError(c, "Failed to fetch community")
		return
	}

	token, shareURL, err := h.share.Mint(c.Request.Context(), share.Payload{
		CommunityShortID: community.CommunityShortID,
		PluginID:         community.PluginID,
		BoardID:          board.ID,
		PostID:           post.ID,
	})
	if err != nil {
		logger.Log.Error("Failed to mint share token",
			logger.WithPostID(post.ID),
			zap.Error(err))
		util.RespondInternalError(c, "Failed to mint share link")
		return
	}

	metrics.App().ShareLinksMinted.WithLabelValues().Inc()

	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"share_url": shareURL,
		"post_id":   post.ID,
	})
}

// ResolveShareURL turns a share link into a host platform redirect. The
// shared post is smuggled through a cookie the iframe reads back via
// GetSharedContent. Expired tokens still redirect so old links land on
// the forum instead of an error page.
// GET /c/:communityShortId/:pluginId/:token
func (h *Handlers) ResolveShareURL(c *gin.Context) {
	shortID := c.Param("communityShortId")
	pluginID := c.Param("pluginId")
	token := c.Param("token")

	payload, err := h.share.Resolve(c.Request.Context(), token)
	switch {
	case err == nil:
		// The iframe is cross-site from the host platform, so the
		// cookie must be SameSite=None and therefore Secure.
		c.SetSameSite(http.SameSiteNoneMode)
		c.SetCookie(sharedContentCookie,
			fmt.Sprintf("%d:%d", payload.BoardID, payload.PostID),
			sharedContentMaxAge, "/", "", true, true)
	case errors.Is(err, share.ErrTokenNotFound):
		// fall through to the redirect without a cookie
	default:
		logger.Log.Warn("Failed to resolve share token",
			zap.String("token", token),
			zap.Error(err))
	}

	target := h.share.HostPluginURL(shortID, pluginID)
	if query := c.Request.URL.RawQuery; query != "" {
		target += "?" + query
	}
	c.Redirect(http.StatusFound, target)
}

// GetSharedContent reads and clears the shared-content cookie so the
// freshly embedded iframe can deep-link to the shared post exactly
// once.
// GET /api/me/shared-content
func (h *Handlers) GetSharedContent(c *gin.Context) {
	raw, err := c.Cookie(sharedContentCookie)
	if err != nil || raw == "" {
		c.JSON(http.StatusOK, gin.H{"shared_content": nil})
		return
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(sharedContentCookie, "", -1, "/", "", true, true)

	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		c.JSON(http.StatusOK, gin.H{"shared_content": nil})
		return
	}
	boardID, err1 := strconv.ParseInt(parts[0], 10, 64)
	postID, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusOK, gin.H{"shared_content": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shared_content": gin.H{
			"board_id": boardID,
			"post_id":  postID,
		},
	})
}
