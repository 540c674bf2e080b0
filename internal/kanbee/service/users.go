package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

const (
	MinPasswordLen = 6
	MaxUsernameLen = 64
	searchLimit    = 20
)

var defaultAvatars = []string{"meow1.png", "meow2.png", "meow3.png", "meow4.png", "meow5.png"}

// UserService owns user reads and writes. Reads go through the cache; every
// write hits the store first and then refreshes both cache keys of the user.
type UserService struct {
	Store  store.Store
	Cache  cache.Cache
	Hasher cryptox.PasswordHasher

	// SessionTTL bounds how long a cached user may be served.
	SessionTTL time.Duration

	// AvatarBaseURL prefixes the built-in avatar file names.
	AvatarBaseURL string

	Now func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// SignUpInput is a local registration request.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// Validate normalizes the input and checks every field.
func (in *SignUpInput) Validate() error {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLen {
		return invalidf("password must be at least %d characters", MinPasswordLen)
	}
	return validateUsername(in.Username)
}

// FindByID reads through the cache.
func (s *UserService) FindByID(ctx context.Context, id string) (domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return domain.User{}, notFoundf("user")
	}
	return s.readThrough(ctx, cache.UserIDKey(id), func() (domain.User, error) {
		return s.Store.Users().GetUserByID(ctx, id)
	})
}

// FindByEmail reads through the cache.
func (s *UserService) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.User{}, notFoundf("user")
	}
	return s.readThrough(ctx, cache.UserEmailKey(email), func() (domain.User, error) {
		return s.Store.Users().GetUserByEmail(ctx, email)
	})
}

// FindOne accepts either an id or an email.
func (s *UserService) FindOne(ctx context.Context, idOrEmail string) (domain.User, error) {
	if strings.Contains(idOrEmail, "@") {
		return s.FindByEmail(ctx, idOrEmail)
	}
	return s.FindByID(ctx, idOrEmail)
}

func (s *UserService) readThrough(ctx context.Context, key string, load func() (domain.User, error)) (domain.User, error) {
	if u, err := cache.GetJSON[domain.User](ctx, s.Cache, key); err == nil {
		return u, nil
	}

	u, err := load()
	if err != nil {
		return domain.User{}, storeErr(err, "user")
	}
	u.PasswordHash = ""
	s.Remember(ctx, u)
	return u, nil
}

// Remember writes u under its id and email keys in one step. Failures are
// logged and leave the cache without either key.
func (s *UserService) Remember(ctx context.Context, users ...domain.User) {
	entries := make([]cache.Entry, 0, 2*len(users))
	for _, u := range users {
		u.Normalize()
		byID, err := cache.JSONEntry(cache.UserIDKey(u.ID), u, s.SessionTTL)
		if err != nil {
			slogx.FromContext(ctx).Warn("cache encode user failed", slog.String("user_id", u.ID), slog.Any("error", err))
			continue
		}
		byEmail := byID
		byEmail.Key = cache.UserEmailKey(u.Email)
		entries = append(entries, byID, byEmail)
	}
	if len(entries) > 0 {
		_ = s.Cache.SetMulti(ctx, entries...)
	}
}

// Forget evicts both cache keys of each user.
func (s *UserService) Forget(ctx context.Context, users ...domain.User) {
	keys := make([]string, 0, 2*len(users))
	for _, u := range users {
		keys = append(keys, cache.UserIDKey(u.ID), cache.UserEmailKey(u.Email))
	}
	if len(keys) > 0 {
		_ = s.Cache.Delete(ctx, keys...)
	}
}

// Register creates a local account. The email must be unused.
func (s *UserService) Register(ctx context.Context, in SignUpInput) (domain.User, error) {
	if err := in.Validate(); err != nil {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Roles:        []domain.Role{domain.RoleUser},
		Avatar:       s.DefaultAvatar(),
		Provider:     domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.Normalize()

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, conflictf("email %s is already registered", in.Email)
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID))
	s.Remember(ctx, u)
	return u, nil
}

// Authenticate checks a password against the stored hash. The store is
// consulted directly so a stale cached hash can never decide a login.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
		}
		return domain.User{}, err
	}
	if u.PasswordHash == "" {
		return domain.User{}, fmt.Errorf("%w: account uses %s sign-in", ErrUnauthenticated, strings.ToLower(string(u.Provider)))
	}
	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			slogx.FromContext(ctx).Error("stored password hash unreadable", slog.String("user_id", u.ID), slog.Any("error", err))
		}
		return domain.User{}, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}

	s.Remember(ctx, u)
	return u, nil
}

// UpsertFederated creates or refreshes an account from a provider profile.
// Calling it twice with the same profile yields the same user.
func (s *UserService) UpsertFederated(ctx context.Context, email, username, avatar string, provider domain.Provider) (domain.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	now := s.now()
	u, err := s.Store.Users().UpsertUserByEmail(ctx, domain.User{
		ID:        idx.New().String(),
		Email:     email,
		Username:  username,
		Roles:     []domain.Role{domain.RoleUser},
		Avatar:    strings.TrimSpace(avatar),
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, err
	}

	// An empty provider avatar keeps the stored one; brand new accounts get a default.
	if u.Avatar == "" {
		u.Avatar = s.DefaultAvatar()
		if err := s.Store.Users().UpdateUser(ctx, u); err != nil {
			return domain.User{}, err
		}
	}

	s.Remember(ctx, u)
	return u, nil
}

// ProfileUpdate carries the user editable fields. Nil leaves a field as is.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

// UpdateProfile changes the username or avatar of userID.
func (s *UserService) UpdateProfile(ctx context.Context, actor Actor, userID string, upd ProfileUpdate) (domain.User, error) {
	if !actor.IsSelfOrAdmin(userID) {
		return domain.User{}, ErrForbidden
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if err := validateUsername(name); err != nil {
			return domain.User{}, err
		}
		upd.Username = &name
	}

	return s.mutate(ctx, "updateProfile", userID, func(u *domain.User) error {
		if upd.Username != nil {
			u.Username = *upd.Username
		}
		if upd.Avatar != nil {
			u.Avatar = s.avatarOrDefault(*upd.Avatar)
		}
		return nil
	})
}

// IncrementTimer bumps the user's completed focus cycle counter.
func (s *UserService) IncrementTimer(ctx context.Context, userID string) (domain.User, error) {
	return s.mutate(ctx, "incrementTimer", userID, func(u *domain.User) error {
		u.CycleTimer++
		return nil
	})
}

// mutate applies fn to the stored user inside one unit of work and then
// refreshes the cache.
func (s *UserService) mutate(ctx context.Context, op, userID string, fn func(u *domain.User) error) (domain.User, error) {
	var out domain.User
	err := InTx(ctx, s.Store, op, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByID(ctx, userID)
		if err != nil {
			return storeErr(err, "user")
		}
		if err := fn(&u); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return storeErr(err, "user")
		}
		out = u
		return nil
	}, "user_id", userID)
	if err != nil {
		return domain.User{}, err
	}

	s.Remember(ctx, out)
	return out, nil
}

// Search matches email or username substrings.
func (s *UserService) Search(ctx context.Context, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidf("search query is empty")
	}
	return s.Store.Users().SearchUsers(ctx, query, searchLimit)
}

// Members resolves ids to users in order, skipping ids that do not exist.
func (s *UserService) Members(ctx context.Context, ids []string) ([]domain.User, error) {
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Delete removes an account. Only the owner or an ADMIN may do so.
// Projects referencing the user keep their ids; readers skip missing users.
func (s *UserService) Delete(ctx context.Context, actor Actor, userID string) error {
	if !actor.IsSelfOrAdmin(userID) {
		return ErrForbidden
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return storeErr(err, "user")
	}
	if err := s.Store.Users().DeleteUser(ctx, userID); err != nil {
		return storeErr(err, "user")
	}

	s.Forget(ctx, u)
	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", userID), slog.String("by", actor.UserID))
	return nil
}

// DefaultAvatar picks one of the built-in avatars.
func (s *UserService) DefaultAvatar() string {
	name := defaultAvatars[rand.IntN(len(defaultAvatars))] // #nosec G404 -- cosmetic choice
	if s.AvatarBaseURL == "" {
		return name
	}
	return strings.TrimRight(s.AvatarBaseURL, "/") + "/" + name
}

func (s *UserService) avatarOrDefault(avatar string) string {
	if avatar = strings.TrimSpace(avatar); avatar != "" {
		return avatar
	}
	return s.DefaultAvatar()
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateEmail(email string) error {
	if email == "" {
		return invalidf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidf("email %q is not valid", email)
	}
	return nil
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return invalidf("username is required")
	}
	if n > MaxUsernameLen {
		return invalidf("username must be at most %d characters", MaxUsernameLen)
	}
	return nil
}
