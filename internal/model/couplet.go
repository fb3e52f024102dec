package model

import "time"

type Couplet struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CoupletVersion struct {
	ID              int64             `json:"id"`
	CoupletID       int64             `json:"couplet_id"`
	VersionNumber   int               `json:"version_number"`
	IsLatestVersion bool              `json:"is_latest_version"`
	Note            string            `json:"note"`
	CreatedBy       *int64            `json:"created_by,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Contents        []*CoupletContent `json:"contents,omitempty"`
}

type CoupletContent struct {
	ID        int64  `json:"id"`
	VersionID int64  `json:"version_id"`
	Position  int    `json:"position"`
	UpperLine string `json:"upper_line"`
	LowerLine string `json:"lower_line"`
	Banner    string `json:"banner"`
}

// CoupletDetail 对联及其最新版本
type CoupletDetail struct {
	Couplet *Couplet        `json:"couplet"`
	Latest  *CoupletVersion `json:"latest"`
}
