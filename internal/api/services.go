package api

import (
	"github.com/castlane/timeline/internal/cache"
	"github.com/castlane/timeline/internal/counter"
	"github.com/castlane/timeline/internal/db"
	"github.com/castlane/timeline/internal/engagement"
	"github.com/castlane/timeline/internal/follow"
	"github.com/castlane/timeline/internal/post"
	"github.com/castlane/timeline/internal/profile"
	"github.com/castlane/timeline/internal/relationship"
	"github.com/castlane/timeline/internal/timeline"
	"github.com/castlane/timeline/pkg/config"
)

// NewServices wires the engine over PostgreSQL. A nil cache disables author caching.
func NewServices(database *db.DB, redisCache *cache.Cache, cfg *config.Config) Services {
	repo := db.NewRepository(database.DB)
	profiles := db.NewProfileRepository(repo)
	rels := db.NewRelationshipRepository(repo)
	follows := db.NewFollowRepository(repo)
	posts := db.NewPostRepository(repo)
	engagementRepo := db.NewEngagementRepository(repo)

	tl := cfg.Timeline
	authors := profile.NewResolver(profiles, redisCache, cfg.Redis.AuthorTTL)
	composer := timeline.NewComposer(posts, rels, authors, counter.NewAggregator(engagementRepo), timeline.Limits{
		DefaultPageSize: tl.DefaultPageSize,
		MaxPageSize:     tl.MaxPageSize,
	})

	return Services{
		Timeline: composer,
		Follows: follow.NewWorkflow(follows, rels, profiles, authors, follow.Limits{
			DefaultPageSize: tl.DefaultPageSize,
			MaxPageSize:     tl.MaxPageSize,
		}),
		Relationships: relationship.NewService(rels, profiles),
		Posts: post.NewService(posts, post.Limits{
			MaxPostLength: tl.MaxPostLength,
			MaxMedia:      tl.MaxMedia,
		}),
		Engagement: engagement.NewService(engagementRepo, composer, rels, authors, engagement.Limits{
			MaxCommentLength: tl.MaxCommentLength,
			DefaultPageSize:  tl.DefaultPageSize,
			MaxPageSize:      tl.MaxPageSize,
		}),
	}
}
