package model

// LowStockNotification は在庫が最小在庫数を下回ったことの通知を表す。
// 履歴取得（pull）とリアルタイム配信（push）の両方で同じ形で届く。
type LowStockNotification struct {
	ID           string      `json:"id,omitempty"`
	Date         string      `json:"date"`
	Product      ProductName `json:"product"`
	CurrentStock int         `json:"currentStock"`
	MinimumStock int         `json:"minimumStock"`
}

// NotificationKey は通知の重複排除キー（subjectId, timestamp）。
type NotificationKey struct {
	SubjectID string
	Timestamp string
}

// Key は通知の重複排除キーを返す。
func (n LowStockNotification) Key() NotificationKey {
	return NotificationKey{SubjectID: n.Product.ProductID, Timestamp: n.Date}
}

// SubjectID は通知対象の商品IDを返す。
func (n LowStockNotification) SubjectID() string { return n.Product.ProductID }

// SubjectName は通知対象の商品名を返す。
func (n LowStockNotification) SubjectName() string { return n.Product.Name }
