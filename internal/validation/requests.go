package validation

// StatisticsRequest is the body of POST /api/statistics.
type StatisticsRequest struct {
	ProfileID string `json:"profileId" validate:"required,max=128,printascii"`
	WidgetID  string `json:"widgetId" validate:"omitempty,max=128,printascii"`
	Type      string `json:"type" validate:"required,oneof=views clicks"`
	UniqueID  string `json:"uniqueId" validate:"required,max=256"`
}

// StatisticsQuery is the query of GET /api/statistics.
type StatisticsQuery struct {
	ProfileID string `query:"profileId" validate:"required,max=128"`
	WidgetID  string `query:"widgetId" validate:"omitempty,max=128"`
}

// UUIDQuery is the query of GET /api/getProfilesByUuid.
type UUIDQuery struct {
	UUID string `query:"uuid" validate:"required,max=128"`
}

// UsernameQuery is the query of GET /api/profiles/by-username.
type UsernameQuery struct {
	Username string `query:"username" validate:"required,max=64"`
}

// WidgetTypeQuery is the query of GET .../widgets/type.
type WidgetTypeQuery struct {
	Type string `query:"type" validate:"required,max=64"`
}

// ListQuery bounds list endpoints.
type ListQuery struct {
	Limit int `query:"limit" validate:"min=0,max=1000"`
}
