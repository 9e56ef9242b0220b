package gateway

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/shurcooL/githubv4"
	"golang.org/x/time/rate"
)

// ProfileResolver looks up the public profile of a user.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, login string) (domain.Profile, error)
}

// userProfileQuery fetches the display name and public email of one user.
type userProfileQuery struct {
	User struct {
		Name  githubv4.String
		Email githubv4.String
	} `graphql:"user(login: $login)"`
}

// GraphQLProfileResolver resolves profiles through the GraphQL API and keeps
// results in an LRU cache shared by all repositories of a scan.
type GraphQLProfileResolver struct {
	graphqlClient *githubv4.Client
	cache         *lru.Cache[string, domain.Profile]
	limiter       *rate.Limiter
}

func NewGraphQLProfileResolver(client *githubv4.Client, cacheSize int, limiter *rate.Limiter) (*GraphQLProfileResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, domain.Profile](cacheSize)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &GraphQLProfileResolver{graphqlClient: client, cache: cache, limiter: limiter}, nil
}

// ResolveProfile is safe for concurrent use.
func (r *GraphQLProfileResolver) ResolveProfile(ctx context.Context, login string) (domain.Profile, error) {
	const op = "resolve profile"
	if p, ok := r.cache.Get(login); ok {
		return p, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.Profile{}, classify(op, err)
	}
	var q userProfileQuery
	variables := map[string]interface{}{"login": githubv4.String(login)}
	if err := r.graphqlClient.Query(ctx, &q, variables); err != nil {
		return domain.Profile{}, classify(op, err)
	}
	p := domain.Profile{Name: string(q.User.Name), Email: string(q.User.Email)}
	r.cache.Add(login, p)
	return p, nil
}

// Remember primes the cache, e.g. with profiles restored from a checkpoint.
func (r *GraphQLProfileResolver) Remember(login string, p domain.Profile) {
	r.cache.Add(login, p)
}
