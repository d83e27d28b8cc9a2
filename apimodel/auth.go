package apimodel

// LoginRequest is the POST /auth/login body. Identifier accepts either an
// email address or a username.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// LoginResponse is returned by login, unlock and the Google code exchange.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// SessionResponse is the GET /auth/session body. A missing user with a
// 200-level status means the session is gone server-side.
type SessionResponse struct {
	User *User `json:"user"`
}

// UnlockRequest resolves an account lockout with the emailed one-time code.
type UnlockRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendUnlockCodeRequest asks for a fresh unlock code.
type ResendUnlockCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// GoogleAuthURLResponse is the GET /auth/google/url body.
type GoogleAuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// GoogleExchangeRequest is the POST /auth/google/exchange body.
type GoogleExchangeRequest struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"codeVerifier" validate:"required,min=43,max=128"`
}

// RefreshResponse is the POST /auth/refresh-token body.
type RefreshResponse struct {
	Token string `json:"token"`
}

// User is the backend's user representation.
type User struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	DisplayName     string `json:"displayName,omitempty"`
	PhotoURL        string `json:"photoURL,omitempty"`
	CoverPhoto      string `json:"coverPhoto,omitempty"`
	Role            string `json:"role,omitempty"`
	IsAdmin         bool   `json:"isAdmin,omitempty"`
	IsSuperAdmin    bool   `json:"isSuperAdmin,omitempty"`
	ProfileComplete bool   `json:"isProfileComplete,omitempty"`
}

// ProfileUpdate is the partial-update body for the profile endpoint. Nil
// fields are left unchanged server-side.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
	CoverPhoto  *string `json:"coverPhoto,omitempty"`
}
