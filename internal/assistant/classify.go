package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	apperrors "github.com/edgard/cropwise/internal/errors"
)

var quotaCodes = map[string]struct{}{
	"insufficient_quota": {},
	"resource_exhausted": {},
}

func isQuotaCode(code string) bool {
	_, ok := quotaCodes[strings.ToLower(code)]
	return ok
}

// classifyStatus maps an HTTP status and provider error code to a remote
// error kind and whether the call may be retried.
func classifyStatus(status int, code string) (apperrors.RemoteKind, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.RemoteAuth, false
	case status == http.StatusTooManyRequests || isQuotaCode(code):
		return apperrors.RemoteQuota, false
	case status >= http.StatusInternalServerError:
		return apperrors.RemoteTransient, true
	default:
		return apperrors.RemoteTransient, false
	}
}

// classifyTransport handles failures that never produced an HTTP status.
func classifyTransport(provider string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false, provider+" request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, true, provider+" request timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, true, provider+" network error", err)
	}

	return apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 0, false, provider+" request failed", err)
}

func classifyOpenAI(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if s, ok := apiErr.Code.(string); ok && s != "" {
			code = s
		}
		kind, retryable := classifyStatus(apiErr.HTTPStatusCode, code)
		return apperrors.NewRemoteServiceError(kind, apiErr.HTTPStatusCode, retryable,
			fmt.Sprintf("openai API error %d", apiErr.HTTPStatusCode), err)
	}

	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		kind, retryable := classifyStatus(reqErr.HTTPStatusCode, "")
		return apperrors.NewRemoteServiceError(kind, reqErr.HTTPStatusCode, retryable,
			fmt.Sprintf("openai request error %d", reqErr.HTTPStatusCode), err)
	}

	return classifyTransport("openai", err)
}

func classifyGemini(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	default:
		return classifyTransport("gemini", err)
	}

	kind, retryable := classifyStatus(apiErr.Code, apiErr.Status)
	return apperrors.NewRemoteServiceError(kind, apiErr.Code, retryable,
		fmt.Sprintf("gemini API error %d", apiErr.Code), err)
}
