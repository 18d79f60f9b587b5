package user

// UserResponse defines the response structure for user information.
type UserResponse struct {
	ID       uint       `json:"id"`
	Username string     `json:"username"`
	Role     string     `json:"role"`
	Quota    *QuotaInfo `json:"quota,omitempty"`
	Token    string     `json:"token,omitempty"`
}

// QuotaInfo defines the structure for credit quota details
type QuotaInfo struct {
	Total           int64   `json:"total"`
	Used            int64   `json:"used"`
	Remaining       int64   `json:"remaining"`
	UsagePercentage float64 `json:"usagePercentage"`
}
