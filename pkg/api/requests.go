package api

// registerRequest binds POST /auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgName  string `json:"org_name"`
}

// loginRequest binds POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest binds POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// submitAnalysisRequest binds POST /analyses.
type submitAnalysisRequest struct {
	ProblemDescription string `json:"problem_description"`
	BusinessType       string `json:"business_type"`
	Industry           string `json:"industry"`
	Depth              string `json:"depth"`
}

// refineRequest binds POST /analyses/{id}/refine.
type refineRequest struct {
	Message string `json:"message"`
}

// billingWebhookEvent binds the verified POST /webhooks/billing body.
// CycleStart is RFC3339 and optional; empty anchors the new cycle at now.
type billingWebhookEvent struct {
	OrgID      string `json:"org_id"`
	NewPlan    string `json:"new_plan"`
	CycleStart string `json:"cycle_start"`
}
