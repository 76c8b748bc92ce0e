package middleware

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/services"
)

const maxAuditBody = 2000

// sensitiveValue matches a quoted JSON string value under a key whose text
// must not reach system_logs. Review comments are included so hidden review
// text stays out of the audit trail.
var sensitiveValue = regexp.MustCompile(`(?i)("(?:password|secret|token|access_token|comment)"\s*:\s*")((?:[^"\\]|\\.)*)(")`)

// AuditLog records every write request (POST/PUT/DELETE) in system_logs.
// Requests that end with a 4xx or 5xx status are stored at warning level.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if !isWriteMethod(method) {
			c.Next()
			return
		}

		body := captureBody(c)

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			uid = &userID
		}
		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   body,
			"audit":  true,
		}

		record := services.LogInfo
		if status >= http.StatusBadRequest {
			record = services.LogWarning
		}
		record(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// captureBody reads the request body, puts it back for the handler and
// returns a masked, size-limited copy for the log entry.
func captureBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	snippet := string(raw)
	if len(snippet) > maxAuditBody {
		snippet = snippet[:maxAuditBody] + "...[truncated]"
	}
	return maskSensitiveFields(snippet)
}

// parseRouteInfo derives the module and action of a Gin route pattern.
// Admin routes take their module from the segment after "admin". A POST
// that ends in a verb segment uses that verb as its action, so
// "/api/jobs/:id/complete" is Jobs/Complete and "/api/reviews" is
// Reviews/Create.
func parseRouteInfo(fullPath, method string) (module, action string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api"), "/"), "/")
	if parts[0] == "admin" && len(parts) > 1 {
		parts = parts[1:]
	}

	module = humanize(parts[0])
	if module == "" {
		module = "unknown"
	}

	switch method {
	case http.MethodPost:
		action = "Create"
		if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
			action = humanize(last)
		}
	case http.MethodPut:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

// humanize turns a path segment like "system-logs" into "System Logs".
func humanize(segment string) string {
	words := strings.Fields(strings.ReplaceAll(segment, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatAuditMessage(username, method, path string, status int) string {
	outcome := "Failed"
	if status >= 200 && status < 300 {
		outcome = "OK"
	}
	return "[Audit] " + username + " " + method + " " + path + " → " + outcome
}

// maskSensitiveFields replaces every sensitive string value in a JSON body
// with "***". Non-string values are left alone.
func maskSensitiveFields(body string) string {
	return sensitiveValue.ReplaceAllString(body, "${1}***${3}")
}
