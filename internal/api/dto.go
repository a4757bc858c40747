package api

import (
	"time"

	"github.com/starford/robotdb/internal/catalog"
)

// RecordDetail is the full record response type (aliased from the domain layer).
type RecordDetail = catalog.RecordDetail

// AssetItem is a lightweight item in a list response (aliased from the domain layer).
type AssetItem = catalog.AssetItem

// KeywordItem is a single keyword search hit (aliased from the domain layer).
type KeywordItem = catalog.KeywordItem

// ScanResult is returned by POST /scan (aliased from the domain layer).
type ScanResult = catalog.ScanResult

// AssetListResponse wraps paginated asset listings.
type AssetListResponse struct {
	Assets []AssetItemDTO `json:"assets" validate:"required"`
	Total  int            `json:"total" example:"42" validate:"required"`
}

// AssetItemDTO mirrors AssetItem with explicit types for swag.
type AssetItemDTO struct {
	Identity     string    `json:"identity" example:"/ws/tests/login.robot"`
	Kind         string    `json:"kind" example:"suite" enums:"suite,resource,library,variable"`
	FileName     string    `json:"file_name,omitempty" example:"login.robot"`
	FilePath     string    `json:"file_path,omitempty" example:"/ws/tests/login.robot"`
	Module       string    `json:"library_module,omitempty" example:"Collections"`
	Document     string    `json:"document" example:"login.robot-6f1ed002ab5595859014ebf0951522d9.json"`
	KeywordCount int       `json:"keyword_count" example:"3"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KeywordSearchResponse wraps keyword search hits.
type KeywordSearchResponse struct {
	Results []KeywordItemDTO `json:"results" validate:"required"`
}

// KeywordItemDTO mirrors KeywordItem for swag.
type KeywordItemDTO struct {
	Identity      string   `json:"identity" example:"/ws/resources/common.resource" validate:"required"`
	Key           string   `json:"key" example:"open_login_page" validate:"required"`
	Name          string   `json:"keyword_name" example:"Open Login Page" validate:"required"`
	Arguments     []string `json:"keyword_arguments" example:"${url}"`
	Documentation string   `json:"documentation" example:"Opens the login page."`
	Tags          []string `json:"tags" example:"smoke"`
	Snippet       string   `json:"snippet,omitempty" example:"Opens the [login] page."`
}

// DependentsResponse lists the assets importing one asset.
type DependentsResponse struct {
	Identity   string             `json:"identity" example:"/ws/resources/common.resource" validate:"required"`
	Dependents []DependentItemDTO `json:"dependents" validate:"required"`
}

// DependentItemDTO mirrors catalog.DependentItem for swag.
type DependentItemDTO struct {
	Identity string `json:"identity" example:"/ws/tests/login.robot" validate:"required"`
	Kind     string `json:"kind" example:"suite"`
	Via      string `json:"via" example:"resource" enums:"resource,library,variable"`
}

// GraphNode is a node in the import graph.
type GraphNode struct {
	ID      string `json:"id" example:"/ws/tests/login.robot" validate:"required"`
	Kind    string `json:"kind" example:"suite"`
	Missing bool   `json:"missing,omitempty" example:"false"`
}

// GraphLink is an edge in the import graph.
type GraphLink struct {
	Source string `json:"source" example:"/ws/tests/login.robot" validate:"required"`
	Target string `json:"target" example:"Collections" validate:"required"`
	Kind   string `json:"kind" example:"library"`
}

// GraphResponse wraps the import graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}
