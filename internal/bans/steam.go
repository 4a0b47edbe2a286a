package bans

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
)

const steamAPIBase = "https://api.steampowered.com"

var (
	steamID64Re  = regexp.MustCompile(`^\d{17}$`)
	profileURLRe = regexp.MustCompile(`steamcommunity\.com/profiles/(\d{17})`)
	vanityURLRe  = regexp.MustCompile(`steamcommunity\.com/id/([^/?#\s]+)`)
	vanityNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{2,32}$`)
)

// Steam приводит ввод пользователя к SteamID64.
type Steam struct {
	http *resty.Client
	key  string
}

func NewSteam(apiKey, baseURL string) *Steam {
	if baseURL == "" {
		baseURL = steamAPIBase
	}
	return &Steam{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(15 * time.Second),
		key:  apiKey,
	}
}

// ResolveSteamID64 принимает 17 цифр, ссылку на профиль или vanity-имя.
func (s *Steam) ResolveSteamID64(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if steamID64Re.MatchString(input) {
		return input, nil
	}
	if m := profileURLRe.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}
	vanity := ""
	if m := vanityURLRe.FindStringSubmatch(input); m != nil {
		vanity = m[1]
	} else if vanityNameRe.MatchString(input) {
		vanity = input
	}
	if vanity == "" || s.key == "" {
		return "", fmt.Errorf("%w: invalid steam id %q", errs.ErrValidation, input)
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"key": s.key, "vanityurl": vanity}).
		Get("/ISteamUser/ResolveVanityURL/v0001/")
	if err != nil {
		return "", fmt.Errorf("%w: steam resolve: %v", errs.ErrExternal, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: steam resolve: status %d", errs.ErrExternal, resp.StatusCode())
	}
	var out struct {
		Response struct {
			SteamID string `json:"steamid"`
			Success int    `json:"success"`
		} `json:"response"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: steam resolve: %v", errs.ErrExternal, err)
	}
	if out.Response.Success != 1 || !steamID64Re.MatchString(out.Response.SteamID) {
		return "", fmt.Errorf("%w: unknown steam profile %q", errs.ErrValidation, vanity)
	}
	return out.Response.SteamID, nil
}
