package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/marchespei/marchespei-api/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(ctx context.Context, email, password, companyName string) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(ctx context.Context, email, password, companyName string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	companyName = strings.TrimSpace(companyName)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(password) < 8 {
		return models.User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        email,
		CompanyName:  companyName,
		PasswordHash: string(hash),
		IsActive:     true,
	}

	const query = `
		INSERT INTO notify.users (email, company_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err = u.db.QueryRowContext(ctx, query, user.Email, user.CompanyName, user.PasswordHash, user.IsActive).Scan(&user.ID)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	var user models.User

	const query = `
		SELECT id, email, company_name, password_hash, is_active
		FROM notify.users
		WHERE email = $1`
	err := u.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Email,
		&user.CompanyName,
		&user.PasswordHash,
		&user.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, errors.New("account is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}

	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	const query = `
		SELECT id, email, company_name, password_hash, is_active
		FROM notify.users
		WHERE id = $1`
	err := u.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.CompanyName,
		&user.PasswordHash,
		&user.IsActive,
	)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
