package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/jferrl/go-githubauth"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Credentials selects how requests are authenticated. A personal access token
// takes precedence over GitHub App credentials.
type Credentials struct {
	Token string

	AppClientID       string
	AppPrivateKey     []byte
	AppInstallationID int64
}

func (c Credentials) IsZero() bool {
	return c.Token == "" && (c.AppClientID == "" || len(c.AppPrivateKey) == 0 || c.AppInstallationID == 0)
}

func (c Credentials) tokenSource() (oauth2.TokenSource, error) {
	if c.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token}), nil
	}
	if c.IsZero() {
		return nil, fmt.Errorf("no GitHub credentials configured")
	}
	appTokenSource, err := githubauth.NewApplicationTokenSource(c.AppClientID, c.AppPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}
	return githubauth.NewInstallationTokenSource(c.AppInstallationID, appTokenSource), nil
}

// NewHTTPClient builds the authenticated client shared by the REST and GraphQL
// gateways. Secondary rate limits are slept through by the transport as long as a
// single sleep stays under maxSecondarySleep; longer ones surface as errors.
func NewHTTPClient(creds Credentials, maxSecondarySleep, timeout time.Duration, logger logrus.FieldLogger) (*http.Client, error) {
	ts, err := creds.tokenSource()
	if err != nil {
		return nil, err
	}
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(maxSecondarySleep, func(*github_ratelimit.CallbackContext) {
		logger.WithField("limit", maxSecondarySleep.String()).Warn("secondary rate limit sleep exceeds cap, handing back to retrier")
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: oauth2.ReuseTokenSource(nil, ts),
		},
	}, nil
}

// Ping checks that the credentials are accepted and reports the remaining core quota.
func (g *GitHubGateway) Ping(ctx context.Context) (remaining int, reset time.Time, err error) {
	limits, _, err := g.restClient.RateLimit.Get(ctx)
	if err != nil {
		return 0, time.Time{}, classify("get rate limits", err)
	}
	core := limits.GetCore()
	if core == nil {
		return 0, time.Time{}, nil
	}
	return core.Remaining, core.Reset.Time, nil
}
