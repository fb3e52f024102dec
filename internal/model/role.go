package model

type Role struct {
	ID          int64    `json:"id"`
	TenantID    int64    `json:"tenant_id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type Permission struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
