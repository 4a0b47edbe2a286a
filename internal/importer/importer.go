// Package importer загружает архив транскриптов старого бота (<номер>.json) закрытыми тикетами типа imported.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/model"
)

// Store — часть service.TicketServicer, нужная импорту.
type Store interface {
	CounterValue(ctx context.Context, name string) (int64, error)
	EnsureCounterAtLeast(ctx context.Context, name string, v int64) error
	Insert(ctx context.Context, t *model.Ticket) error
}

type transcript struct {
	Messages []struct {
		Author      string    `json:"author"`
		Content     string    `json:"content"`
		Timestamp   time.Time `json:"timestamp"`
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	} `json:"messages"`
	Entities struct {
		Users map[string]struct {
			Username string `json:"username"`
		} `json:"users"`
	} `json:"entities"`
}

// Result — итог импорта каталога.
type Result struct {
	Imported int
	Skipped  int
	Failed   int
	MaxID    int64
}

type Importer struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Importer {
	return &Importer{store: store, now: time.Now}
}

// ImportDir импортирует файлы по возрастанию номера. Номера не больше текущего счётчика пропускаются,
// остальной диапазон резервируется в счётчике до первой вставки, чтобы живые тикеты получали номера выше.
// Ошибки отдельных файлов логируются.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Result, error) {
	var res Result
	files, err := numbered(dir)
	if err != nil {
		return res, err
	}
	floor, err := im.store.CounterValue(ctx, model.TicketCounter)
	if err != nil {
		return res, err
	}

	var pending []numberedFile
	for _, f := range files {
		if f.id <= floor {
			log.Printf("importer: skip %s: id %d is within live range (counter %d)", f.name, f.id, floor)
			res.Skipped++
			continue
		}
		pending = append(pending, f)
	}
	if len(pending) == 0 {
		return res, nil
	}
	top := pending[len(pending)-1].id
	if err := im.store.EnsureCounterAtLeast(ctx, model.TicketCounter, top); err != nil {
		return res, err
	}
	log.Printf("importer: reserved ids %d..%d", pending[0].id, top)

	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.importFile(ctx, filepath.Join(dir, f.name), f.id); err != nil {
			log.Printf("importer: %s: %v", f.name, err)
			res.Failed++
			continue
		}
		res.Imported++
		if f.id > res.MaxID {
			res.MaxID = f.id
		}
	}
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, path string, id int64) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	t, err := Parse(fh, id, im.now())
	if err != nil {
		return err
	}
	return im.store.Insert(ctx, t)
}

// Parse строит закрытый тикет из транскрипта; now используется, если сообщений нет.
func Parse(r io.Reader, id int64, now time.Time) (*model.Ticket, error) {
	var tr transcript
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode transcript %d: %w", id, err)
	}

	t := &model.Ticket{
		ID:                   id,
		DestinationChannelID: "imported_ticket_" + strconv.FormatInt(id, 10),
		CreatorUserID:        model.StringPtr("unknown"),
		Type:                 model.TicketTypeImported,
		Answers:              model.Answers{},
		CreatedAt:            now,
	}
	for _, m := range tr.Messages {
		sender := m.Author
		if u, ok := tr.Entities.Users[m.Author]; ok && u.Username != "" {
			sender = u.Username
		}
		if sender == "" {
			sender = "unknown"
		}
		var atts []string
		for _, a := range m.Attachments {
			if a.URL != "" {
				atts = append(atts, a.URL)
			}
		}
		t.Messages = append(t.Messages, model.Message{
			TicketID:      id,
			Sender:        sender,
			DiscordUserID: model.StringPtr(m.Author),
			Content:       m.Content,
			Attachments:   atts,
			Timestamp:     m.Timestamp,
		})
	}

	closed := now
	if n := len(t.Messages); n > 0 {
		t.CreatedAt = t.Messages[0].Timestamp
		closed = t.Messages[n-1].Timestamp
		if author := model.Deref(t.Messages[0].DiscordUserID, ""); author != "" {
			t.CreatorUserID = model.StringPtr(author)
		}
	}
	t.ClosedAt = &closed
	return t, nil
}

type numberedFile struct {
	name string
	id   int64
}

// numbered — *.json с числовым именем, по возрастанию номера.
func numbered(dir string) ([]numberedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var out []numberedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil || id <= 0 {
			log.Printf("importer: skip %s: not a ticket number", name)
			continue
		}
		out = append(out, numberedFile{name: name, id: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}
