package model

// 在庫移動の種別。
const (
	MovementTypeIn  = "IN"
	MovementTypeOut = "OUT"
)

// StockMovement は在庫数の変化履歴1件を表す。
type StockMovement struct {
	ID       string      `json:"id"`
	Date     string      `json:"date"`
	Type     string      `json:"type"`
	Product  ProductName `json:"product"`
	Username string      `json:"username"`
	Quantity int         `json:"quantity"`
	Action   string      `json:"action,omitempty"`
	Notes    string      `json:"notes,omitempty"`
}
