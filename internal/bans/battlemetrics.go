package bans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
)

const battleMetricsBase = "https://api.battlemetrics.com"

type relation struct {
	Data struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

// Ban — запись о бане; нужен только автор.
type Ban struct {
	ID            string `json:"id"`
	Relationships struct {
		User relation `json:"user"`
	} `json:"relationships"`
}

// AdminUserID — id пользователя BattleMetrics, выдавшего бан.
func (b Ban) AdminUserID() string { return b.Relationships.User.Data.ID }

type BattleMetrics struct {
	http  *resty.Client
	orgID string
}

func NewBattleMetrics(token, orgID, baseURL string) *BattleMetrics {
	if baseURL == "" {
		baseURL = battleMetricsBase
	}
	return &BattleMetrics{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second).
			SetAuthToken(token),
		orgID: orgID,
	}
}

func (b *BattleMetrics) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	resp, err := b.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
	if err != nil {
		return fmt.Errorf("%w: battlemetrics %s: %v", errs.ErrExternal, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: battlemetrics %s: status %d", errs.ErrExternal, path, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: battlemetrics %s: %v", errs.ErrExternal, path, err)
	}
	return nil
}

// PlayerBans — активные баны игрока в организации.
func (b *BattleMetrics) PlayerBans(ctx context.Context, steamID string) ([]Ban, error) {
	var out struct {
		Data []Ban `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	err := b.get(ctx, "/bans", map[string]string{
		"page[size]":           "10",
		"filter[expired]":      "false",
		"filter[organization]": b.orgID,
		"filter[search]":       steamID,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Meta.Total == 0 {
		return nil, nil
	}
	return out.Data, nil
}

// UserSteamID — SteamID админа организации по его id в BattleMetrics; "" если не найден.
func (b *BattleMetrics) UserSteamID(ctx context.Context, userID string) (string, error) {
	var out struct {
		Included []struct {
			Attributes struct {
				Identifiers []struct {
					Identifier string `json:"identifier"`
				} `json:"identifiers"`
			} `json:"attributes"`
			Relationships struct {
				User relation `json:"user"`
			} `json:"relationships"`
		} `json:"included"`
	}
	if err := b.get(ctx, "/organizations/"+b.orgID, map[string]string{"include": "organizationUser"}, &out); err != nil {
		return "", err
	}
	for _, inc := range out.Included {
		if inc.Relationships.User.Data.ID == userID && len(inc.Attributes.Identifiers) > 0 {
			return inc.Attributes.Identifiers[0].Identifier, nil
		}
	}
	return "", nil
}
