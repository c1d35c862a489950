// Package miner registers miners and checks their credentials.
package miner

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	passwordLength  = 6
	passwordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	ErrNoSuchUser         = errors.New("no such user")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store is the slice of store.Store the miner service needs.
type Store interface {
	CreateMiner(ctx context.Context, miner *models.Miner) error
	GetMinerByUsername(ctx context.Context, username string) (*models.Miner, error)
}

type RegisterRequest struct {
	EthereumAddress string `json:"ethereumAddress"`
	Username        string `json:"username"`
	Email           string `json:"email"`
}

// Credentials are returned once, at registration. The password is not
// recoverable afterwards.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Service struct {
	store Store
	cost  int
}

func NewService(s Store) *Service {
	return &Service{store: s, cost: bcrypt.DefaultCost}
}

// Register creates a miner with a server-generated password.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Credentials, error) {
	password, err := GeneratePassword()
	if err != nil {
		return nil, err
	}
	if _, err := s.RegisterWithPassword(ctx, req, password); err != nil {
		return nil, err
	}
	return &Credentials{Username: req.Username, Password: password}, nil
}

// RegisterWithPassword stores a miner whose password is the bcrypt hash of password.
func (s *Service) RegisterWithPassword(ctx context.Context, req RegisterRequest, password string) (*models.Miner, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	m := &models.Miner{
		EthereumAddress: req.EthereumAddress,
		Username:        req.Username,
		Email:           req.Email,
		PasswordHash:    string(hash),
	}
	if err := s.store.CreateMiner(ctx, m); err != nil {
		return nil, fmt.Errorf("register miner: %w", err)
	}
	return m, nil
}

// Authenticate returns the miner whose username and password match.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.Miner, error) {
	m, err := s.store.GetMinerByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSuchUser
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return m, nil
}

// GeneratePassword returns a random alphanumeric password.
func GeneratePassword() (string, error) {
	limit := big.NewInt(int64(len(passwordCharset)))
	b := make([]byte, passwordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b[i] = passwordCharset[n.Int64()]
	}
	return string(b), nil
}
