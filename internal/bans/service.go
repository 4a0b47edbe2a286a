package bans

import (
	"context"
	"log"
)

type SteamResolver interface {
	ResolveSteamID64(ctx context.Context, input string) (string, error)
}

type BanSource interface {
	PlayerBans(ctx context.Context, steamID string) ([]Ban, error)
	UserSteamID(ctx context.Context, userID string) (string, error)
}

// Service — данные для апелляции бана: проверка SteamID и поиск администратора, выдавшего бан.
type Service struct {
	steam  SteamResolver
	bm     BanSource
	admins map[string]string
}

// NewService: bm может быть nil, тогда поиск администратора отключён.
func NewService(steam SteamResolver, bm BanSource, admins map[string]string) *Service {
	if admins == nil {
		admins = map[string]string{}
	}
	return &Service{steam: steam, bm: bm, admins: admins}
}

// ResolveSteamID64 возвращает errs.ErrValidation для некорректного ввода.
func (s *Service) ResolveSteamID64(ctx context.Context, input string) (string, error) {
	return s.steam.ResolveSteamID64(ctx, input)
}

// ReviewerDiscordID — Discord id администратора, выдавшего активный бан; "" если не найден.
func (s *Service) ReviewerDiscordID(ctx context.Context, steamID string) string {
	if s.bm == nil {
		return ""
	}
	bans, err := s.bm.PlayerBans(ctx, steamID)
	if err != nil {
		log.Printf("bans: player bans %s: %v", steamID, err)
		return ""
	}
	if len(bans) == 0 {
		return ""
	}
	adminSteam, err := s.bm.UserSteamID(ctx, bans[0].AdminUserID())
	if err != nil {
		log.Printf("bans: admin steam id: %v", err)
		return ""
	}
	if adminSteam == "" {
		log.Printf("bans: no steam id for battlemetrics user %s", bans[0].AdminUserID())
		return ""
	}
	return s.admins[adminSteam]
}
