package model

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// ValidStatus 漫画/章节的状态取值
func ValidStatus(s string) bool {
	return s == StatusDraft || s == StatusPublished || s == StatusArchived
}

type Comic struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Author      string     `json:"author"`
	CoverURL    string     `json:"cover_url"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Volume struct {
	ID        int64     `json:"id"`
	ComicID   int64     `json:"comic_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Episode struct {
	ID          int64      `json:"id"`
	ComicID     int64      `json:"comic_id"`
	VolumeID    *int64     `json:"volume_id,omitempty"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	IsLocked    bool       `json:"is_locked"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Page struct {
	ID         int64    `json:"id"`
	EpisodeID  int64    `json:"episode_id"`
	PageNumber int      `json:"page_number"`
	ImageURL   string   `json:"image_url"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Panels     []*Panel `json:"panels,omitempty"`
}

type Panel struct {
	ID          int64  `json:"id"`
	PageID      int64  `json:"page_id"`
	PanelNumber int    `json:"panel_number"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Dialogue    string `json:"dialogue"`
}

// EpisodeDetail 阅读接口返回章节及其页面
type EpisodeDetail struct {
	Episode *Episode `json:"episode"`
	Pages   []*Page  `json:"pages"`
}

type ComicFilter struct {
	Status string
	Query  string
}
