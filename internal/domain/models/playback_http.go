package models

// Requests for playback HTTP endpoints. Defined in domain for reuse by handlers and tests.

type SpeedRequest struct {
	Speed float64 `query:"speed" json:"speed" validate:"required,gt=0,lte=1"`
}

type ViewRequest struct {
	From string `query:"from" json:"from"`
	To   string `query:"to" json:"to"`
}

type ChartRequest struct {
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Width  int    `query:"width" json:"width" default:"1200" validate:"gte=200,lte=4000"`
	Height int    `query:"height" json:"height" default:"650" validate:"gte=200,lte=4000"`
}

type AlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}
