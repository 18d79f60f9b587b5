package user

// UserSummary is one row of the admin user list.
type UserSummary struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	QuotaTotal int64  `json:"quota_total"`
	QuotaUsed  int64  `json:"quota_used"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Total int64         `json:"total"`
}

// GrantCreditsInput is an administrative top-up.
type GrantCreditsInput struct {
	Credits int64 `json:"credits" binding:"required,min=1"`
}
