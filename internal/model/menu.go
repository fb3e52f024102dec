package model

type Menu struct {
	ID                 int64             `json:"id"`
	TenantID           int64             `json:"tenant_id"`
	ParentID           *int64            `json:"parent_id,omitempty"`
	Key                string            `json:"key"`
	Path               string            `json:"path"`
	Icon               string            `json:"icon"`
	Sort               int               `json:"sort"`
	Visible            bool              `json:"visible"`
	RequiredPermission *string           `json:"required_permission,omitempty"`
	Translations       map[string]string `json:"translations,omitempty"`
}

// MenuNode 菜单树节点，Title 已按 locale 解析
type MenuNode struct {
	ID       int64       `json:"id"`
	Key      string      `json:"key"`
	Title    string      `json:"title"`
	Path     string      `json:"path"`
	Icon     string      `json:"icon"`
	Children []*MenuNode `json:"children"`
}
