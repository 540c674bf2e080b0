package kanbeesdk

import (
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenResponse carries an access token. The refresh token travels only in
// the HttpOnly refresh cookie.
type TokenResponse struct {
	AccessToken string    `json:"access_token" example:"eyJhbGciOiJFZERTQSJ9..."`
	TokenType   string    `json:"token_type" example:"Bearer"`
	ExpiresIn   int       `json:"expires_in" example:"900"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// InitResponse is returned by GET /v1/auth/init.
type InitResponse struct {
	User  User          `json:"user"`
	Token TokenResponse `json:"token"`
}

type SignUpRequest struct {
	Email    string `json:"email" example:"bee@kanbee.dev"`
	Password string `json:"password" example:"hunter22"`
	Username string `json:"username" example:"bee"`
}

type SignInRequest struct {
	Email    string `json:"email" example:"bee@kanbee.dev"`
	Password string `json:"password" example:"hunter22"`
}

// User is the full account view, visible to its owner and ADMINs.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Roles           []string  `json:"roles"`
	Avatar          string    `json:"avatar"`
	Provider        string    `json:"provider"`
	ProjectIDs      []string  `json:"projectsId"`
	Invites         []Invite  `json:"invites"`
	Exclusions      []string  `json:"exclusions"`
	CreatedProjects int       `json:"createdProjects"`
	CycleTimer      int       `json:"cycleTimer"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PublicUser is what other users may see.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

type MembersRequest struct {
	IDs []string `json:"ids"`
}

type Invite struct {
	ProjectID string `json:"id"`
	Title     string `json:"title"`
}

type Column struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Tasks []json.RawMessage `json:"tasks"`
}

type Project struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AdminID   string    `json:"adminId"`
	MemberIDs []string  `json:"membersId"`
	Kanban    []Column  `json:"kanban"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateProjectRequest struct {
	Title string `json:"title" example:"Sprint"`
}

type UpdateKanbanRequest struct {
	Kanban []Column `json:"kanban"`
}

type SendInviteRequest struct {
	Email string `json:"email" example:"friend@kanbee.dev"`
}

type AcceptExclusionRequest struct {
	Title string `json:"title" example:"Sprint"`
}

// ProjectRef names a deleted project.
type ProjectRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ExileNotice is pushed to a user removed from a project.
type ExileNotice struct {
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Left      bool   `json:"left"`
}

type CreateQuoteRequest struct {
	Text string `json:"text" example:"Ship it."`
}

type Quote struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type QuoteOfTheDay struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ProvidersResponse lists the configured federated login providers.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency checked by /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Cache    string `json:"cache"`
}

// JWKSResponse is the public key set used to verify access tokens.
type JWKSResponse jwtx.JWKS
