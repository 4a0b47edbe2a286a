package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
)

const (
	DefaultBaseURL = "https://api.vk.com/method"
	APIVersion     = "5.199"
)

type Config struct {
	Token   string
	GroupID string
	AlbumID string
	// BaseURL переопределяется в тестах.
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client загружает файлы в сообщество VK и возвращает постоянные ссылки.
type Client struct {
	api     *resty.Client
	upload  *resty.Client
	token   string
	groupID string
	albumID string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 5 * time.Minute
	}
	return &Client{
		api: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		upload:  resty.New().SetTimeout(cfg.UploadTimeout),
		token:   cfg.Token,
		groupID: cfg.GroupID,
		albumID: cfg.AlbumID,
	}
}

// Enabled — есть ли токен; без него загрузка не выполняется.
func (c *Client) Enabled() bool { return c.token != "" }

// APIError — ошибка из поля error ответа VK.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
	Method  string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk: %s: %d %s", e.Method, e.Code, e.Message)
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

// call выполняет метод API: POST /<method> с form-параметрами.
func (c *Client) call(ctx context.Context, method string, params map[string]string, out interface{}) error {
	form := map[string]string{"access_token": c.token, "v": APIVersion}
	for k, v := range params {
		if v != "" {
			form[k] = v
		}
	}
	var env envelope
	resp, err := c.api.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("%w: vk %s: %v", errs.ErrExternal, method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: vk %s: status %d", errs.ErrExternal, method, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%w: vk %s: decode envelope: %v", errs.ErrExternal, method, err)
	}
	if env.Error != nil {
		env.Error.Method = method
		return fmt.Errorf("%w: %v", errs.ErrExternal, env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: vk %s: decode: %v", errs.ErrExternal, method, err)
	}
	return nil
}

// postFile отправляет файл на upload-сервер и разбирает JSON-ответ (сервер видео отвечает text/html).
func (c *Client) postFile(ctx context.Context, uploadURL, field, path string, out interface{}) error {
	resp, err := c.upload.R().
		SetContext(ctx).
		SetFile(field, path).
		Post(uploadURL)
	if err != nil {
		return fmt.Errorf("%w: vk upload: %v", errs.ErrExternal, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: vk upload: status %d", errs.ErrExternal, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: vk upload: response is not json: %v", errs.ErrExternal, err)
	}
	return nil
}

type uploadServer struct {
	UploadURL string `json:"upload_url"`
}

// UploadPhoto: photos.getUploadServer → file1 → photos.save.
func (c *Client) UploadPhoto(ctx context.Context, path string) (string, error) {
	var srv uploadServer
	if err := c.call(ctx, "photos.getUploadServer", map[string]string{
		"album_id": c.albumID,
		"group_id": c.groupID,
	}, &srv); err != nil {
		return "", err
	}
	if srv.UploadURL == "" {
		return "", fmt.Errorf("%w: vk photo: empty upload_url", errs.ErrExternal)
	}

	var up struct {
		Server     int64  `json:"server"`
		PhotosList string `json:"photos_list"`
		Hash       string `json:"hash"`
	}
	if err := c.postFile(ctx, srv.UploadURL, "file1", path, &up); err != nil {
		return "", err
	}

	var saved []struct {
		ID      int64 `json:"id"`
		OwnerID int64 `json:"owner_id"`
	}
	if err := c.call(ctx, "photos.save", map[string]string{
		"album_id":    c.albumID,
		"group_id":    c.groupID,
		"server":      strconv.FormatInt(up.Server, 10),
		"photos_list": up.PhotosList,
		"hash":        up.Hash,
	}, &saved); err != nil {
		return "", err
	}
	if len(saved) == 0 {
		return "", fmt.Errorf("%w: vk photo: photos.save returned nothing", errs.ErrExternal)
	}
	return fmt.Sprintf("https://vk.com/photo%d_%d", saved[0].OwnerID, saved[0].ID), nil
}

// UploadVideo: video.save → video_file → повторный video.save.
func (c *Client) UploadVideo(ctx context.Context, path, title, description string) (string, error) {
	var srv uploadServer
	if err := c.call(ctx, "video.save", map[string]string{
		"name":        title,
		"description": description,
		"group_id":    c.groupID,
	}, &srv); err != nil {
		return "", err
	}
	if srv.UploadURL == "" {
		return "", fmt.Errorf("%w: vk video: empty upload_url", errs.ErrExternal)
	}

	var up struct {
		VideoFile string `json:"video_file"`
		VideoHash string `json:"video_hash"`
		VideoID   int64  `json:"video_id"`
	}
	if err := c.postFile(ctx, srv.UploadURL, "video_file", path, &up); err != nil {
		return "", err
	}

	params := map[string]string{"group_id": c.groupID}
	switch {
	case up.VideoFile != "":
		params["video_file"] = up.VideoFile
	case up.VideoHash != "" && up.VideoID != 0:
		params["video_hash"] = up.VideoHash
		params["video_id"] = strconv.FormatInt(up.VideoID, 10)
	default:
		return "", fmt.Errorf("%w: vk video: upload response has no video_file or video_hash", errs.ErrExternal)
	}

	var fin struct {
		VideoID int64 `json:"video_id"`
		OwnerID int64 `json:"owner_id"`
	}
	if err := c.call(ctx, "video.save", params, &fin); err != nil {
		return "", err
	}
	if fin.VideoID == 0 || fin.OwnerID == 0 {
		return "", fmt.Errorf("%w: vk video: finalize returned no ids", errs.ErrExternal)
	}
	// финализация возвращает id на единицу больше опубликованного ролика
	return fmt.Sprintf("https://vk.com/video%d_%d", fin.OwnerID, fin.VideoID-1), nil
}

// UploadDocument: docs.getUploadServer → file → docs.save.
func (c *Client) UploadDocument(ctx context.Context, path, title string) (string, error) {
	var srv uploadServer
	if err := c.call(ctx, "docs.getUploadServer", nil, &srv); err != nil {
		return "", err
	}
	if srv.UploadURL == "" {
		return "", fmt.Errorf("%w: vk doc: empty upload_url", errs.ErrExternal)
	}

	var up struct {
		File string `json:"file"`
	}
	if err := c.postFile(ctx, srv.UploadURL, "file", path, &up); err != nil {
		return "", err
	}

	var saved struct {
		Doc *struct {
			ID      int64 `json:"id"`
			OwnerID int64 `json:"owner_id"`
		} `json:"doc"`
	}
	if err := c.call(ctx, "docs.save", map[string]string{
		"file":         up.File,
		"title":        title,
		"privacy_view": "all",
	}, &saved); err != nil {
		return "", err
	}
	if saved.Doc == nil {
		return "", fmt.Errorf("%w: vk doc: docs.save returned no doc", errs.ErrExternal)
	}
	return fmt.Sprintf("https://vk.com/doc%d_%d", saved.Doc.OwnerID, saved.Doc.ID), nil
}
