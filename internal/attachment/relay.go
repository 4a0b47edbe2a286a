package attachment

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/metrics"
)

// Kind — как файл будет перезалит.
type Kind int

const (
	KindDocument Kind = iota
	KindPhoto
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	}
	return "document"
}

// KindFromMIME: image/* → фото, video/* → видео, остальное — документ.
func KindFromMIME(mime string) Kind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindPhoto
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	}
	return KindDocument
}

// Source — вложение из входящего сообщения.
type Source struct {
	// FileID — стабильный id файла на исходной платформе, ключ кэша.
	FileID      string
	URL         string
	MIME        string
	Name        string
	Title       string
	Description string
}

func (s Source) Kind() Kind { return KindFromMIME(s.MIME) }

// Uploader — медиа-хостинг (vk.Client).
type Uploader interface {
	UploadPhoto(ctx context.Context, path string) (string, error)
	UploadVideo(ctx context.Context, path, title, description string) (string, error)
	UploadDocument(ctx context.Context, path, title string) (string, error)
}

type Config struct {
	DownloadsDir    string
	MaxConcurrent   int
	DownloadTimeout time.Duration
}

// Relay скачивает вложение, перезаливает его и кэширует постоянную ссылку на время жизни процесса.
type Relay struct {
	dir   string
	http  *resty.Client
	up    Uploader
	cache *cache.Cache
	sem   chan struct{}
}

func NewRelay(cfg Config, up Uploader) *Relay {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 4
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 2 * time.Minute
	}
	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = os.TempDir()
	}
	return &Relay{
		dir:   cfg.DownloadsDir,
		http:  resty.New().SetTimeout(cfg.DownloadTimeout),
		up:    up,
		cache: cache.New(cache.NoExpiration, 0),
		sem:   make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Relay возвращает постоянную ссылку или "" если перезалить не удалось.
func (r *Relay) Relay(ctx context.Context, src Source) string {
	kind := src.Kind()
	if src.FileID != "" {
		if v, ok := r.cache.Get(src.FileID); ok {
			metrics.Attachment(kind.String(), "cached")
			return v.(string)
		}
	}
	if r.up == nil {
		return ""
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		log.Printf("attachment: %s: %v", src.FileID, ctx.Err())
		return ""
	}

	done := metrics.UploadTimer(kind.String())
	url, err := r.rehost(ctx, src, kind)
	done()
	if err != nil {
		metrics.Attachment(kind.String(), "failed")
		log.Printf("attachment: rehost %s (%s): %v", src.FileID, kind, err)
		return ""
	}
	metrics.Attachment(kind.String(), "uploaded")
	if src.FileID != "" {
		r.cache.Set(src.FileID, url, cache.NoExpiration)
	}
	return url
}

// RelayAll обрабатывает вложения по очереди, сохраняя порядок поступления.
func (r *Relay) RelayAll(ctx context.Context, srcs []Source) []string {
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, r.Relay(ctx, s))
	}
	return out
}

func (r *Relay) rehost(ctx context.Context, src Source, kind Kind) (string, error) {
	tmp, err := r.download(ctx, src)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			log.Printf("attachment: remove %s: %v", tmp, err)
		}
	}()

	switch kind {
	case KindPhoto:
		return r.up.UploadPhoto(ctx, tmp)
	case KindVideo:
		title := src.Title
		if title == "" {
			title = "Видео от бота"
		}
		return r.up.UploadVideo(ctx, tmp, title, src.Description)
	default:
		title := src.Title
		if title == "" {
			title = src.Name
		}
		if title == "" {
			title = "Документ от бота"
		}
		return r.up.UploadDocument(ctx, tmp, title)
	}
}

// download сохраняет файл в DownloadsDir/<uuid><ext>.
func (r *Relay) download(ctx context.Context, src Source) (string, error) {
	if src.URL == "" {
		return "", fmt.Errorf("%w: attachment %s has no url", errs.ErrExternal, src.FileID)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("downloads dir: %w", err)
	}
	tmp := filepath.Join(r.dir, uuid.NewString()+extension(src))
	resp, err := r.http.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(src.URL)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: download: %v", errs.ErrExternal, err)
	}
	if resp.IsError() {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: download: status %d", errs.ErrExternal, resp.StatusCode())
	}
	return tmp, nil
}

func extension(src Source) string {
	if ext := filepath.Ext(src.Name); ext != "" {
		return ext
	}
	u := src.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return path.Ext(u)
}
