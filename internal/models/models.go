// Package models holds the request, response, and domain types shared
// between the HTTP surface and the backing services.
package models

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	UID           string   `json:"uid"`
	Email         string   `json:"email"`
	DisplayName   string   `json:"display_name,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles"`
}

// HasRole reports whether the identity carries the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Auth request/response shapes

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" binding:"omitempty,rolename"` // admin-only; non-admin callers may not set this
}

type RegisterResponse struct {
	UID         string   `json:"uid"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UID          string `json:"uid"`
	Email        string `json:"email"`
}

type VerifyTokenRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type VerifyTokenResponse struct {
	Valid  bool           `json:"valid"`
	UID    string         `json:"uid,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
}

type UpdateProfileResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type ChangePasswordRequest struct {
	IDToken     string `json:"id_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SetRolesRequest struct {
	// An empty list resets the target to the default role.
	Roles []string `json:"roles" binding:"dive,rolename"`
}

type SetRolesResponse struct {
	OK    bool     `json:"ok"`
	UID   string   `json:"uid"`
	Roles []string `json:"roles"`
	Note  string   `json:"note,omitempty"`
}

type StatusResponse struct {
	OK bool `json:"ok"`
}

// Search shapes

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type SearchResponse struct {
	Query   string      `json:"query"`
	Terms   []string    `json:"terms"`
	Count   int         `json:"count"`
	Results []BugResult `json:"results"`
}

// BugResult is one ranked search hit, augmented with the assigned developer
// and dominant topic reached by traversal.
type BugResult struct {
	Bug       Bug        `json:"bug"`
	Score     float64    `json:"score"`
	Developer *Developer `json:"developer,omitempty"`
	Topic     *Topic     `json:"topic,omitempty"`
}

// Graph entities

type Bug struct {
	ID             string  `json:"id"`
	Summary        string  `json:"summary"`
	CleanText      string  `json:"clean_text,omitempty"`
	Creator        string  `json:"creator,omitempty"`
	AssignedTo     string  `json:"assigned_to,omitempty"`
	Status         string  `json:"status,omitempty"`
	Resolution     string  `json:"resolution,omitempty"`
	CreationTime   string  `json:"creation_time,omitempty"`
	LastChangeTime string  `json:"last_change_time,omitempty"`
	DominantTopic  int64   `json:"dominant_topic"`
	TopicScore     float64 `json:"topic_score"`
	TopicLabel     string  `json:"topic_label,omitempty"`
}

type Topic struct {
	TopicID    int64  `json:"topic_id"`
	TopicLabel string `json:"topic_label,omitempty"`
	Terms      string `json:"terms,omitempty"`
	CleanTerms string `json:"clean_terms,omitempty"`
}

type Developer struct {
	AssignedTo    string    `json:"assigned_to"`
	DominantTopic int64     `json:"dominant_topic"`
	TopicScores   []float64 `json:"topic_scores,omitempty"` // affinity t0..t7
}

// BugDetail is a single bug with its traversal neighborhood.
type BugDetail struct {
	Bug       Bug        `json:"bug"`
	Developer *Developer `json:"developer,omitempty"`
	Topic     *Topic     `json:"topic,omitempty"`
	Similar   []Bug      `json:"similar,omitempty"`
}

// TopicAffinity is one row of a developer's per-topic fix history.
type TopicAffinity struct {
	TopicID    int64   `json:"topic_id"`
	TopicLabel string  `json:"topic_label"`
	BugsFixed  int64   `json:"bugs_fixed"`
	Share      float64 `json:"share"`
}

// DeveloperTopics aggregates a developer's fixed bugs by topic.
type DeveloperTopics struct {
	Developer string          `json:"developer"`
	TotalBugs int64           `json:"total_bugs"`
	Topics    []TopicAffinity `json:"topics"`
}
