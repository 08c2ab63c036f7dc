package http

type AuthRequest struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Room   string `json:"room"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
