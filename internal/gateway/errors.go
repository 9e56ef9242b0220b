package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-contrib/internal/apperror"
)

// emptyRepositoryMessage is the message GitHub sends with 409 for a repository without commits.
const emptyRepositoryMessage = "Git Repository is empty."

// classify maps a client error onto the apperror taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperror.RateLimited(op, time.Until(rateErr.Rate.Reset.Time), err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperror.RateLimited(op, abuseErr.GetRetryAfter(), err)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch {
		case status == http.StatusConflict && strings.Contains(respErr.Message, emptyRepositoryMessage):
			return apperror.RepositoryEmpty(op, err)
		case status == http.StatusTooManyRequests:
			return apperror.RateLimited(op, retryAfter(respErr.Response), err)
		case status >= http.StatusInternalServerError:
			return apperror.Transient(op, err)
		}
		return apperror.Fatal(op, err)
	}

	if errors.Is(err, context.Canceled) {
		return apperror.Fatal(op, err)
	}
	if isTransportFailure(err) {
		return apperror.Transient(op, err)
	}
	return apperror.Fatal(op, err)
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
