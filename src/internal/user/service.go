package user

import (
	"context"
	"errors"
	"math"

	"budgetbook-svc/src/internal/cache"
	"budgetbook-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

type Service interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetAllUsers(ctx context.Context, req *ListRequest) (*ListResponse, error)
	GetUserStats(ctx context.Context) (*models.Stats, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) error
	SetRole(ctx context.Context, userID, role string) error
	SetMaxSessionCount(ctx context.Context, userID string, limit int) error
}

type userService struct {
	userRepository Repository
	cacheService   cache.Service
}

func NewUserService(userRepository Repository, cacheService cache.Service) Service {
	return &userService{
		userRepository: userRepository,
		cacheService:   cacheService,
	}
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.userRepository.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.ToProfile(), nil
}

func (s *userService) GetAllUsers(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	if req.Role != "" && !isValidRole(req.Role) {
		return nil, errors.New("invalid role filter")
	}

	logrus.WithFields(logrus.Fields{
		"page":   req.Page,
		"limit":  req.Limit,
		"role":   req.Role,
		"search": req.Search,
	}).Debug("Getting all users")

	users, totalCount, err := s.userRepository.GetAllUsers(ctx, req)
	if err != nil {
		logrus.WithError(err).Error("Failed to get users from repository")
		return nil, err
	}

	profiles := make([]*Profile, len(users))
	for i, u := range users {
		profiles[i] = u.ToProfile()
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(req.Limit)))

	return &ListResponse{
		Users:      profiles,
		TotalCount: totalCount,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: totalPages,
	}, nil
}

// GetUserStats serves the cached snapshot when redis has one and recomputes
// from mongo otherwise.
func (s *userService) GetUserStats(ctx context.Context) (*models.Stats, error) {
	if cached, err := s.cacheService.GetUserStats(ctx); err == nil && cached != nil {
		logrus.Debug("User stats served from cache")
		return cached, nil
	}

	stats, err := s.userRepository.GetUserStats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user stats from repository")
		return nil, err
	}

	if err := s.cacheService.SaveUserStats(ctx, stats); err != nil {
		logrus.WithError(err).Debug("Failed to cache user stats")
	}

	return stats, nil
}

func (s *userService) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	if err := s.userRepository.SetBlocked(ctx, userID, blocked); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"blocked": blocked,
	}).Info("User block state updated")
	return nil
}

func (s *userService) SetRole(ctx context.Context, userID, role string) error {
	if !isValidRole(role) {
		return errors.New("invalid role")
	}
	if err := s.userRepository.SetRole(ctx, userID, role); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    role,
	}).Info("User role updated")
	return nil
}

func (s *userService) SetMaxSessionCount(ctx context.Context, userID string, limit int) error {
	if limit < 0 {
		return errors.New("session limit cannot be negative")
	}
	if err := s.userRepository.SetMaxSessionCount(ctx, userID, limit); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"session_limit": limit,
	}).Info("Per-user session limit updated")
	return nil
}

func isValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
