// ABOUTME: HTTP tests for the polled chat room
// ABOUTME: Covers posting, cursor paging, message length limits and limit parsing

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorale/internal/store"
)

func TestChat(t *testing.T) {
	env := setupAPI(t)
	member := env.user(t, "m@example.com", store.UserStatusApproved, store.RoleMember)

	var ids []string
	for _, text := range []string{"first", "  **second**  ", "third"} {
		rec := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]string{"content": text}), member)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		msg := decode[map[string]any](t, rec)
		ids = append(ids, msg["id"].(string))
		assert.Equal(t, member.Name, msg["sender"].(map[string]any)["name"])
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/chat", nil), member)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]map[string]any](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "**second**", all[1]["content"])
	assert.Contains(t, all[1]["contentHtml"], "<strong>second</strong>")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/chat?limit=1&before="+ids[2], nil), member)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]map[string]any](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0]["id"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/chat?before=unknown", nil), member)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestChat_Validation(t *testing.T) {
	env := setupAPI(t)
	member := env.user(t, "m@example.com", store.UserStatusApproved, store.RoleMember)

	for name, text := range map[string]string{
		"empty":    "",
		"blank":    "   ",
		"too long": strings.Repeat("가", MaxChatLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]string{"content": text}), member)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]string{"content": strings.Repeat("가", MaxChatLength)}), member)
	assert.Equal(t, http.StatusOK, rec.Code, "the limit counts characters, not bytes")
}

func TestChatLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", DefaultChatLimit},
		{"abc", DefaultChatLimit},
		{"0", DefaultChatLimit},
		{"-5", DefaultChatLimit},
		{"20", 20},
		{"100", 100},
		{"500", MaxChatLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chatLimit(tt.raw), "limit %q", tt.raw)
	}
}
