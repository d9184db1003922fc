// Package visibility decides whether a single post may be shown to a viewer.
package visibility

import (
	"github.com/castlane/timeline/internal/models"
	"github.com/castlane/timeline/internal/viewer"
)

// CanView reports whether v may see post. authorVisibility is the author
// cast's profile visibility and status is v's follow status toward the author.
// Blocks are checked by callers.
func CanView(post *models.Post, authorVisibility models.Visibility, v viewer.Viewer, status models.FollowStatus) bool {
	if post == nil {
		return false
	}
	if v.IsAuthor(post.AuthorID) {
		return true
	}
	if _, isGuest := v.GuestID(); isGuest && status == models.FollowApproved {
		return true
	}
	return PubliclyVisible(post.Visibility, authorVisibility)
}

// PubliclyVisible reports whether a post is visible to anyone not blocked
func PubliclyVisible(postVisibility, authorVisibility models.Visibility) bool {
	return postVisibility == models.VisibilityPublic && authorVisibility == models.VisibilityPublic
}
