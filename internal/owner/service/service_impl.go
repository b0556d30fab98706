package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("owner.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOwnerRequest) (domain.Owner, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Owner{}, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Owner{}, domain.ErrInvalidEmail
	}
	role, err := authorization.ParseRole(req.Role)
	if err != nil {
		return domain.Owner{}, domain.ErrInvalidRole
	}

	quantity := decimal.NewFromInt(1)
	if req.DefaultQuantity != nil {
		quantity = *req.DefaultQuantity
	}
	if quantity.IsNegative() {
		return domain.Owner{}, domain.ErrInvalidQuantity
	}
	skipDays := []int{0}
	if req.SkipDays != nil {
		skipDays, err = normalizeSkipDays(req.SkipDays)
		if err != nil {
			return domain.Owner{}, err
		}
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Owner{}, err
	}
	if existing != nil {
		return domain.Owner{}, domain.ErrEmailAlreadyTaken
	}

	now := s.clock.Now().UTC()
	owner := domain.Owner{
		ID:              s.genID.Generate(),
		Name:            name,
		Email:           email,
		Role:            string(role),
		Phone:           strings.TrimSpace(req.Phone),
		Address:         strings.TrimSpace(req.Address),
		ContactPerson:   strings.TrimSpace(req.ContactPerson),
		DefaultQuantity: quantity,
		SkipDays:        datatypes.JSONSlice[int](skipDays),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, &owner); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Owner{}, domain.ErrEmailAlreadyTaken
		}
		return domain.Owner{}, err
	}

	s.log.Info("owner created", zap.String("owner_id", owner.ID.String()), zap.String("role", owner.Role))
	return owner, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Owner, error) {
	if id == 0 {
		return domain.Owner{}, domain.ErrNotFound
	}
	owner, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Owner{}, err
	}
	if owner == nil {
		return domain.Owner{}, domain.ErrNotFound
	}
	return *owner, nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]domain.Owner, error) {
	items, err := s.repo.ListByRole(ctx, s.db, string(authorization.RoleCompany))
	if err != nil {
		return nil, err
	}
	owners := make([]domain.Owner, 0, len(items))
	for _, item := range items {
		if item != nil {
			owners = append(owners, *item)
		}
	}
	return owners, nil
}

func (s *Service) GetSettings(ctx context.Context, id snowflake.ID) (domain.Settings, error) {
	owner, err := s.Get(ctx, id)
	if err != nil {
		return domain.Settings{}, err
	}
	return owner.Settings(), nil
}

func (s *Service) UpdateSettings(ctx context.Context, id snowflake.ID, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	owner, err := s.Get(ctx, id)
	if err != nil {
		return domain.Settings{}, err
	}

	if req.DefaultQuantity != nil {
		if req.DefaultQuantity.IsNegative() {
			return domain.Settings{}, domain.ErrInvalidQuantity
		}
		owner.DefaultQuantity = *req.DefaultQuantity
	}
	if req.SkipDays != nil {
		skipDays, err := normalizeSkipDays(*req.SkipDays)
		if err != nil {
			return domain.Settings{}, err
		}
		owner.SkipDays = datatypes.JSONSlice[int](skipDays)
	}
	if req.Address != nil {
		owner.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		owner.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.ContactPerson != nil {
		owner.ContactPerson = strings.TrimSpace(*req.ContactPerson)
	}
	owner.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.UpdateSettings(ctx, s.db, &owner); err != nil {
		return domain.Settings{}, err
	}
	return owner.Settings(), nil
}

// normalizeSkipDays validates weekday numbers (0 = Sunday) and removes duplicates.
func normalizeSkipDays(days []int) ([]int, error) {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, day := range days {
		if day < 0 || day > 6 {
			return nil, domain.ErrInvalidSkipDays
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Ints(out)
	return out, nil
}
