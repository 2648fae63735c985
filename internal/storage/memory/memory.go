package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"billing_auth/internal/models"
	"billing_auth/internal/storage"
)

// Storage is an in-memory credential store with the same transactional
// semantics as the postgres implementation: every operation runs under one
// lock, so callers never observe a partially applied effect.
type Storage struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.Account
	tokens   map[int64]models.VerificationToken
}

func New() *Storage {
	return &Storage{
		nextID:   1,
		accounts: make(map[int64]*models.Account),
		tokens:   make(map[int64]models.VerificationToken),
	}
}

func (s *Storage) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findByEmail(email) != nil, nil
}

func (s *Storage) CreateAccountWithVerificationToken(
	_ context.Context,
	email string,
	passHash, passSalt []byte,
	algorithm string,
	tokenHash string,
	expiresAt time.Time,
) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmail(email) != nil {
		return models.Account{}, storage.ErrEmailExists
	}

	account := &models.Account{
		ID:                s.nextID,
		UUID:              uuid.New(),
		Email:             email,
		PasswordHash:      passHash,
		PasswordSalt:      passSalt,
		PasswordAlgorithm: algorithm,
		Active:            true,
	}
	s.nextID++

	s.accounts[account.ID] = account
	s.tokens[account.ID] = models.VerificationToken{
		AccountID: account.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}

	return *account, nil
}

func (s *Storage) AccountByEmail(_ context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findByEmail(email)
	if a == nil {
		return models.Account{}, storage.ErrAccountNotFound
	}

	return *a, nil
}

func (s *Storage) ConsumeVerificationToken(_ context.Context, accountUUID uuid.UUID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.accounts {
		if a.UUID != accountUUID {
			continue
		}

		t, ok := s.tokens[id]
		if !ok || t.TokenHash != tokenHash || t.IsExpired() {
			return storage.ErrInvalidOrExpiredToken
		}

		delete(s.tokens, id)
		a.VerifiedEmail = true

		return nil
	}

	return storage.ErrInvalidOrExpiredToken
}

func (s *Storage) PendingAccountByEmail(_ context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findByEmail(email)
	if a == nil || a.VerifiedEmail {
		return models.Account{}, storage.ErrAccountNotFound
	}

	return *a, nil
}

func (s *Storage) ReplaceVerificationToken(_ context.Context, email, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findByEmail(email)
	if a == nil || a.VerifiedEmail {
		return storage.ErrAccountNotFound
	}

	s.tokens[a.ID] = models.VerificationToken{
		AccountID: a.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (s *Storage) SweepExpiredUnverified(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	for id, a := range s.accounts {
		t, ok := s.tokens[id]
		if !ok || a.VerifiedEmail || !t.IsExpired() {
			continue
		}

		delete(s.tokens, id)
		delete(s.accounts, id)
		removed++
	}

	return removed, nil
}

func (s *Storage) findByEmail(email string) *models.Account {
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}

	return nil
}
