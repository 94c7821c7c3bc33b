package dto

import "github.com/prohmpiriya/leadflow/internal/domain"

const (
	DefaultActivityLimit = 10
	MaxActivityLimit     = 50
	// ActivityMessages is how many trailing messages an activity item carries
	ActivityMessages = 5
)

// DashboardQuery selects the dashboard window
type DashboardQuery struct {
	Period string `form:"period"`
}

// ActivityQuery represents query parameters for recent activity
type ActivityQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

// SetDefaults sets default values for query parameters
func (q *ActivityQuery) SetDefaults() {
	if q.Limit == 0 {
		q.Limit = DefaultActivityLimit
	}
}

// ActivityResponse lists recent conversations
type ActivityResponse struct {
	Conversations []*domain.ActivityItem `json:"conversations"`
	Total         int                    `json:"total"`
}
