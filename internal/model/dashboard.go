package model

// ObjectCount は名前付きの集計値。
type ObjectCount struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MovementCount は日付ごとの在庫移動件数。
type MovementCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// StatsSummary はダッシュボードの合計値。
type StatsSummary struct {
	TotalProducts int64   `json:"totalProducts"`
	TotalStock    int64   `json:"totalStock"`
	TotalValue    float64 `json:"totalValue"`
}

// MovementsLast24Hours は直近24時間の入出庫集計。
type MovementsLast24Hours struct {
	In       int64         `json:"in"`
	Out      int64         `json:"out"`
	TopUsers []ObjectCount `json:"topUsers"`
}

// MovementsLast7Days は直近7日間の日別入出庫件数。
type MovementsLast7Days struct {
	In  []MovementCount `json:"in"`
	Out []MovementCount `json:"out"`
}

// StatsData はダッシュボードに表示する集計統計。
type StatsData struct {
	Summary                StatsSummary         `json:"summary"`
	CategoriesDistribution []ObjectCount        `json:"categoriesDistribution"`
	CategoriesMovement     []ObjectCount        `json:"categoriesMovement"`
	MovementsLast24Hours   MovementsLast24Hours `json:"movementsLast24Hours"`
	MovementsLast7Days     MovementsLast7Days   `json:"movementsLast7Days"`
}
