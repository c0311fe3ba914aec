package auth

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	AvatarURL    string    `json:"avatar_url"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is what a verified token says about the caller.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Role      string    `json:"role"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	Maps      int       `json:"maps"`
	CreatedAt time.Time `json:"created_at"`
}

type Preferences struct {
	EmailAlerts   bool `json:"email_alerts"`
	FollowAlerts  bool `json:"follow_alerts"`
	LikeAlerts    bool `json:"like_alerts"`
	CommentAlerts bool `json:"comment_alerts"`
}

// PreferencesPatch leaves nil flags unchanged.
type PreferencesPatch struct {
	EmailAlerts   *bool `json:"email_alerts"`
	FollowAlerts  *bool `json:"follow_alerts"`
	LikeAlerts    *bool `json:"like_alerts"`
	CommentAlerts *bool `json:"comment_alerts"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
