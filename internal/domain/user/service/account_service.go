package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rakhi_store/internal/domain/user/model"
	"rakhi_store/internal/domain/user/repository"
	"rakhi_store/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAccount     = errors.New("email is required")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Session 登录结果
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt *time.Time  `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// GuestAccount 结账时提交的联系人信息
type GuestAccount struct {
	Email    string
	Name     string
	Phone    string
	Password string // 为空时生成随机密码，用户之后通过找回密码设置
}

// AccountService 账号服务
type AccountService interface {
	// ProvisionGuest 为游客创建账号并返回用户ID
	// 邮箱已注册时返回 repository.ErrEmailTaken，调用方按游客继续下单
	ProvisionGuest(ctx context.Context, acc GuestAccount) (string, error)
	// Login 邮箱密码登录，游客账号需先通过找回密码设置密码
	Login(ctx context.Context, email, password string) (*Session, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

type accountService struct {
	repo repository.UserRepository
	cost int
}

// NewAccountService 创建账号服务
func NewAccountService(repo repository.UserRepository) AccountService {
	return &accountService{repo: repo, cost: bcrypt.DefaultCost}
}

func (s *accountService) ProvisionGuest(ctx context.Context, acc GuestAccount) (string, error) {
	email := strings.ToLower(strings.TrimSpace(acc.Email))
	if email == "" {
		return "", ErrInvalidAccount
	}

	// 1. 邮箱已存在则不覆盖已有账号
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return "", fmt.Errorf("lookup account: %w", err)
	}
	if existing != nil {
		return "", repository.ErrEmailTaken
	}

	// 2. 密码加密
	password := acc.Password
	if password == "" {
		password = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	// 3. 创建账号
	user := &model.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         acc.Name,
		Phone:        acc.Phone,
		Role:         model.RoleUser,
		IsGuest:      acc.Password == "",
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.IsGuest {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := utils.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *accountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.repo.GetByID(ctx, id)
}
