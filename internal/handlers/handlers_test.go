package handlers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/amistad/backend/internal/models"
	"github.com/amistad/backend/internal/repositories"
)

// fakeUserStore implements UserStore with in-memory maps.
type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]models.User
	creds  map[int64]models.Credential

	searchResults []models.User
	searchTerm    string
	searchLimit   int
	searchOffset  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users: make(map[int64]models.User),
		creds: make(map[int64]models.Credential),
	}
}

// seedUser inserts a user with an optional credential and returns it.
func (s *fakeUserStore) seedUser(user models.User, email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = user

	if email != "" {
		hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		s.creds[user.ID] = models.Credential{
			ID:           user.ID,
			UserID:       user.ID,
			Email:        email,
			PasswordHash: string(hashed),
		}
	}

	return user
}

func (s *fakeUserStore) CreateWithCredential(_ context.Context, user models.User, cred models.Credential) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.users {
		if existing.Username == user.Username {
			return models.User{}, repositories.ErrConflict
		}
		if c, ok := s.creds[id]; ok && c.Email == cred.Email {
			return models.User{}, repositories.ErrConflict
		}
	}

	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = user

	cred.ID = user.ID
	cred.UserID = user.ID
	s.creds[user.ID] = cred

	return user, nil
}

func (s *fakeUserStore) FindByUUID(_ context.Context, userUUID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.UUID == userUUID {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *fakeUserStore) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *fakeUserStore) FindCredentialByEmail(_ context.Context, email string) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range s.creds {
		if cred.Email == email {
			return cred, nil
		}
	}
	return models.Credential{}, repositories.ErrNotFound
}

func (s *fakeUserStore) FindCredentialByUserID(_ context.Context, userID int64) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[userID]
	if !ok {
		return models.Credential{}, repositories.ErrNotFound
	}
	return cred, nil
}

func (s *fakeUserStore) UpdateProfile(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) UpdateCredential(_ context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[cred.UserID]; !ok {
		return repositories.ErrNotFound
	}
	s.creds[cred.UserID] = cred
	return nil
}

func (s *fakeUserStore) Search(_ context.Context, term string, limit, offset int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchTerm, s.searchLimit, s.searchOffset = term, limit, offset

	results := s.searchResults
	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

var _ UserStore = (*fakeUserStore)(nil)

// staticIdentity resolves fixed bearer tokens to user identifiers.
type staticIdentity map[string]string

func (s staticIdentity) Resolve(_ context.Context, accessToken string) (string, error) {
	userUUID, ok := s[accessToken]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userUUID, nil
}

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

// fakeAvatarStorage records saved objects and returns local-style paths.
type fakeAvatarStorage struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newFakeAvatarStorage() *fakeAvatarStorage {
	return &fakeAvatarStorage{saved: make(map[string][]byte)}
}

func (s *fakeAvatarStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.saved[name] = data
	s.mu.Unlock()
	return "uploads/" + name, nil
}

var _ AvatarStorage = (*fakeAvatarStorage)(nil)

func testUser(uuid, username string) models.User {
	return models.User{
		UUID:      uuid,
		FirstName: "Ana",
		LastName:  "Garcia",
		Username:  username,
		BirthDate: time.Date(1990, time.March, 12, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2024, time.January, 2, 10, 0, 0, 0, time.UTC),
	}
}

func bearerHeader(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
