package bans

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var adminLine = regexp.MustCompile(`^Admin=(\d{17}):Admin\s+//\s+DiscordID\s+(\d+)\s+do\s+\d{2}\.\d{2}\.\d{4}$`)

// ParseAdmins читает admins.cfg: SteamID64 → Discord id. Прочие строки пропускаются.
func ParseAdmins(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if m := adminLine.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			out[m[1]] = m[2]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("admins.cfg: %w", err)
	}
	return out, nil
}

func LoadAdmins(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("admins.cfg: %w", err)
	}
	defer f.Close()
	return ParseAdmins(f)
}
