package api

import (
	"encoding/json"
	"time"
)

// RegisterRequest is the body of POST /register/.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	UserType        string `json:"user_type"`
}

// ResetPasswordRequest is the body of POST /reset_password/.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// User is the profile returned by GET /user/{identifier}/.
type User struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Contact      string `json:"contact"`
	Organisation string `json:"organisation"`
}

// ProfileUpdate is the body of PATCH /user/{username}/.
type ProfileUpdate struct {
	Contact      string `json:"contact"`
	Organisation string `json:"organisation"`
}

// Result is the analysis outcome for one image.
type Result struct {
	Filename           string  `json:"filename"`
	LesionCount        int     `json:"lesion_count"`
	PercentageNecrosis float64 `json:"percentage_necrosis"`
	// ResultImage is the annotated image URL. Empty means no image, either
	// because the backend returned null or because it was purged on logout.
	ResultImage     string          `json:"result_image"`
	NecrosisLesions json.RawMessage `json:"necrosis_lesions,omitempty"`
}

// HasImage reports whether the result still carries an annotated image.
func (r Result) HasImage() bool {
	return r.ResultImage != ""
}

// AnalysisResponse is returned by POST /analyze/, GET /session_results/{id}/
// and GET /latest_session_results/.
type AnalysisResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Results   []Result  `json:"results"`
}

// AnalysisSession is one entry of GET /user_sessions/.
type AnalysisSession struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	NumImages   int       `json:"num_images"`
	SessionName string    `json:"session_name,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type sessionsResponse struct {
	Sessions []AnalysisSession `json:"sessions"`
}

type renameRequest struct {
	SessionName string `json:"session_name"`
}
