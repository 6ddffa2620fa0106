// Package template renders notification webhook bodies.
//
// Supported variables:
//
//	{{kind}}, {{token}}, {{expires_at}}
//	{{user.id}}, {{user.username}}, {{user.email}}
package template

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/socialhub/backend/internal/model"
)

// DefaultBody is used when no body template is configured.
const DefaultBody = `{"kind":"{{kind}}","email":"{{user.email}}","username":"{{user.username}}","token":"{{token}}","expiresAt":"{{expires_at}}"}`

// RenderBody substitutes notification variables into body. Values are JSON
// string escaped so the default template stays valid JSON.
func RenderBody(body string, n model.Notification) string {
	if strings.TrimSpace(body) == "" {
		body = DefaultBody
	}

	expiresAt := ""
	if !n.ExpiresAt.IsZero() {
		expiresAt = n.ExpiresAt.UTC().Format(time.RFC3339)
	}

	return strings.NewReplacer(
		"{{kind}}", escape(n.Kind),
		"{{token}}", escape(n.Token),
		"{{expires_at}}", expiresAt,
		"{{user.id}}", escape(n.UserID),
		"{{user.username}}", escape(n.Username),
		"{{user.email}}", escape(n.Email),
	).Replace(body)
}

// escape returns s as the inside of a JSON string literal.
func escape(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return ""
	}
	quoted := bytes.TrimSpace(buf.Bytes())
	return string(quoted[1 : len(quoted)-1])
}
