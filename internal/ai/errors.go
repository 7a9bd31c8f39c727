package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// StatusError is a non-2xx answer from a provider endpoint.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: %d %s: %s", e.Provider, e.Code, http.StatusText(e.Code), e.Body)
}

func newStatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

var apiCodePattern = regexp.MustCompile(`Error (\d{3})`)

// wrapAPIError lifts an SDK error that carries an http code in its message
// into a StatusError so it can be classified.
func wrapAPIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	m := apiCodePattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return err
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return err
	}
	return &StatusError{Provider: provider, Code: code, Body: err.Error()}
}

// IsRetryable reports whether err is worth another attempt: network errors,
// timeouts, rate limiting and server side failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnavailable) || IsStreamStarted(err) {
		return false
	}
	if errors.Is(err, appErr.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout || se.Code >= 500
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
