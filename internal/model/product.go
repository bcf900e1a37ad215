package model

// 商品カテゴリ。リソースAPIが受け付ける値。
const (
	CategoryElectronics = "ELECTRONICS"
	CategoryFurniture   = "FURNITURE"
	CategoryClothing    = "CLOTHING"
	CategoryFood        = "FOOD"
	CategoryToys        = "TOYS"
)

// Categories は既知の商品カテゴリ一覧。
var Categories = []string{
	CategoryElectronics,
	CategoryFurniture,
	CategoryClothing,
	CategoryFood,
	CategoryToys,
}

// Product は在庫管理対象の商品を表す。
type Product struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	InitialStock int     `json:"initialStock"`
	MinimumStock int     `json:"minimumStock"`
	Stock        int     `json:"stock"`
	Category     string  `json:"category"`
}

// ProductName は通知や在庫移動に埋め込まれる商品の識別情報。
type ProductName struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
}
