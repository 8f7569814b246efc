package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

// UserService is the admin-facing account management API.
type UserService interface {
	List(ctx context.Context, principal policy.Principal, req dto.UserListRequest) (dto.UserListResponse, error)
	Get(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error)
	Create(ctx context.Context, principal policy.Principal, payload dto.UserCreateRequest) (dto.UserResponse, error)
	Update(ctx context.Context, principal policy.Principal, id uint, payload dto.UserUpdateRequest) (dto.UserResponse, error)
	Deactivate(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error)
	ToggleActive(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error)
	Delete(ctx context.Context, principal policy.Principal, id uint) error
}

type userService struct {
	repo      repository.UserRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewUserService constructs the user administration service.
func NewUserService(repo repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) UserService {
	return &userService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "user_service").Logger(),
	}
}

func (s *userService) List(ctx context.Context, principal policy.Principal, req dto.UserListRequest) (dto.UserListResponse, error) {
	if err := authorize(policy.CanManageUsers(principal)); err != nil {
		return dto.UserListResponse{}, err
	}

	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	users, total, err := s.repo.List(ctx, repository.UserFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Role:     models.ParseRole(req.Role),
		IsActive: req.IsActive,
		Search:   strings.TrimSpace(req.Search),
	})
	if err != nil {
		return dto.UserListResponse{}, unexpected("list users", err)
	}

	items := make([]dto.UserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, dto.NewUserResponse(user))
	}
	return dto.UserListResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}, nil
}

func (s *userService) Get(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error) {
	if err := authorize(policy.CanViewUser(principal, id)); err != nil {
		return dto.UserResponse{}, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *userService) Create(ctx context.Context, principal policy.Principal, payload dto.UserCreateRequest) (dto.UserResponse, error) {
	if err := authorize(policy.CanManageUsers(principal)); err != nil {
		return dto.UserResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := prepareUser(ctx, s.repo, payload.Username, payload.Email, payload.Password)
	if err != nil {
		return dto.UserResponse{}, err
	}
	user.FirstName = strings.TrimSpace(payload.FirstName)
	user.LastName = strings.TrimSpace(payload.LastName)
	user.Phone = strings.TrimSpace(payload.Phone)
	user.Role = models.ParseRole(payload.Role)
	user.IsSuperuser = payload.IsSuperuser
	user.NormalizeRole()

	if err := s.repo.Create(ctx, &user); err != nil {
		if isDuplicate(err) {
			return dto.UserResponse{}, ErrUserExists
		}
		return dto.UserResponse{}, unexpected("create user", err)
	}

	s.logger.Info().Uint("user_id", user.ID).Uint("actor_id", principal.ID).Str("role", string(user.Role)).Msg("user created")
	return dto.NewUserResponse(user), nil
}

func (s *userService) Update(ctx context.Context, principal policy.Principal, id uint, payload dto.UserUpdateRequest) (dto.UserResponse, error) {
	if err := authorize(policy.CanManageUsers(principal)); err != nil {
		return dto.UserResponse{}, err
	}
	if err := validate(s.validator, payload); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}

	if payload.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*payload.Email))
	}
	if payload.FirstName != nil {
		user.FirstName = strings.TrimSpace(*payload.FirstName)
	}
	if payload.LastName != nil {
		user.LastName = strings.TrimSpace(*payload.LastName)
	}
	if payload.Phone != nil {
		user.Phone = strings.TrimSpace(*payload.Phone)
	}
	if payload.Role != nil {
		user.Role = models.ParseRole(*payload.Role)
	}
	if payload.IsSuperuser != nil {
		user.IsSuperuser = *payload.IsSuperuser
	}
	if payload.IsActive != nil {
		user.IsActive = *payload.IsActive
	}
	user.NormalizeRole()

	if err := s.repo.Update(ctx, &user); err != nil {
		if isDuplicate(err) {
			return dto.UserResponse{}, ErrUserExists
		}
		return dto.UserResponse{}, unexpected("update user", err)
	}
	return dto.NewUserResponse(user), nil
}

func (s *userService) Deactivate(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error) {
	return s.setActive(ctx, principal, id, func(bool) bool { return false })
}

func (s *userService) ToggleActive(ctx context.Context, principal policy.Principal, id uint) (dto.UserResponse, error) {
	return s.setActive(ctx, principal, id, func(current bool) bool { return !current })
}

func (s *userService) setActive(ctx context.Context, principal policy.Principal, id uint, next func(bool) bool) (dto.UserResponse, error) {
	if err := authorize(policy.CanManageUsers(principal)); err != nil {
		return dto.UserResponse{}, err
	}
	if id == principal.ID {
		return dto.UserResponse{}, conflictError("admins cannot change their own active flag")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return dto.UserResponse{}, err
	}

	user.IsActive = next(user.IsActive)
	if err := s.repo.SetActive(ctx, id, user.IsActive); err != nil {
		return dto.UserResponse{}, unexpected("set active", translateNotFound(err, ErrUserNotFound))
	}

	s.logger.Info().Uint("user_id", id).Bool("is_active", user.IsActive).Msg("user active flag changed")
	return dto.NewUserResponse(user), nil
}

func (s *userService) Delete(ctx context.Context, principal policy.Principal, id uint) error {
	if err := authorize(policy.CanManageUsers(principal)); err != nil {
		return err
	}
	if id == principal.ID {
		return conflictError("admins cannot delete their own account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return unexpected("delete user", translateNotFound(err, ErrUserNotFound))
	}
	s.logger.Info().Uint("user_id", id).Uint("actor_id", principal.ID).Msg("user deleted")
	return nil
}

func (s *userService) load(ctx context.Context, id uint) (models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.User{}, unexpected("load user", translateNotFound(err, ErrUserNotFound))
	}
	return user, nil
}

// normalizePage applies the default page size of 20 and caps it at 100.
func normalizePage(page, pageSize int) (int, int) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}
