package bans

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminsCfg = `// comment
Admin=76561198000000001:Admin // DiscordID 111 do 01.02.2025
Admin=76561198000000002:Admin   //   DiscordID 222   do 15.12.2024
Admin=7656119800000000:Admin // DiscordID 333 do 01.02.2025
Group=Admin:kick,ban
`

func TestParseAdmins(t *testing.T) {
	m, err := ParseAdmins(strings.NewReader(adminsCfg))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"76561198000000001": "111",
		"76561198000000002": "222",
	}, m)
}

func TestResolveSteamID64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/ResolveVanityURL/v0001/", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("vanityurl") == "gabe" {
			_, _ = io.WriteString(w, `{"response":{"steamid":"76561197960287930","success":1}}`)
			return
		}
		_, _ = io.WriteString(w, `{"response":{"success":42,"message":"No match"}}`)
	}))
	defer srv.Close()
	s := NewSteam("k", srv.URL)
	ctx := context.Background()

	for in, want := range map[string]string{
		"76561198000000001": "76561198000000001",
		"https://steamcommunity.com/profiles/76561198000000001/": "76561198000000001",
		"https://steamcommunity.com/id/gabe/":                    "76561197960287930",
		"gabe":                                                   "76561197960287930",
	} {
		got, err := s.ResolveSteamID64(ctx, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := s.ResolveSteamID64(ctx, "nobody")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.ResolveSteamID64(ctx, "12345")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.ResolveSteamID64(ctx, "не стим")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func fakeBattleMetrics(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bans":
			assert.Equal(t, "org", r.URL.Query().Get("filter[organization]"))
			assert.Equal(t, "false", r.URL.Query().Get("filter[expired]"))
			if r.URL.Query().Get("filter[search]") == "76561198000000009" {
				_, _ = io.WriteString(w, `{"data":[{"id":"b1","relationships":{"user":{"data":{"type":"user","id":"u42"}}}}],"meta":{"total":1}}`)
				return
			}
			_, _ = io.WriteString(w, `{"data":[],"meta":{"total":0}}`)
		case "/organizations/org":
			assert.Equal(t, "organizationUser", r.URL.Query().Get("include"))
			_, _ = io.WriteString(w, `{"included":[
				{"relationships":{"user":{"data":{"id":"u1"}}},"attributes":{"identifiers":[{"identifier":"76561198000000005"}]}},
				{"relationships":{"user":{"data":{"id":"u42"}}},"attributes":{"identifiers":[{"identifier":"76561198000000001"}]}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReviewerDiscordID(t *testing.T) {
	srv := fakeBattleMetrics(t)
	admins, err := ParseAdmins(strings.NewReader(adminsCfg))
	require.NoError(t, err)
	svc := NewService(NewSteam("", ""), NewBattleMetrics("tok", "org", srv.URL), admins)
	ctx := context.Background()

	assert.Equal(t, "111", svc.ReviewerDiscordID(ctx, "76561198000000009"))
	assert.Empty(t, svc.ReviewerDiscordID(ctx, "76561198000000008"))
}

func TestReviewerLookupFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	svc := NewService(NewSteam("", ""), NewBattleMetrics("tok", "org", srv.URL), nil)
	assert.Empty(t, svc.ReviewerDiscordID(context.Background(), "76561198000000009"))

	_, err := NewBattleMetrics("tok", "org", srv.URL).PlayerBans(context.Background(), "x")
	require.ErrorIs(t, err, errs.ErrExternal)
	assert.Empty(t, NewService(NewSteam("", ""), nil, nil).ReviewerDiscordID(context.Background(), "x"))
}
