package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/khushigoyal02/EMS-back/internal/auth"
	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// AccountService registers customers, vendors and admins and answers role
// lookups.
type AccountService struct {
	accounts AccountStore
	clk      clock.Clock
	log      zerolog.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(accounts AccountStore, clk clock.Clock, log zerolog.Logger) *AccountService {
	return &AccountService{accounts: accounts, clk: clk, log: log}
}

// Create registers the caller under role. The identity subject becomes the
// account uid, so one identity holds exactly one account. Only an existing
// admin may create further admins, naming the new admin's uid; the very
// first admin bootstraps itself.
func (s *AccountService) Create(ctx context.Context, id auth.Identity, role model.Role, req model.CreateAccountRequest) (model.Account, error) {
	if id.UID == "" {
		return model.Account{}, ErrUnauthenticated
	}

	uid := id.UID
	req.UID = strings.TrimSpace(req.UID)
	if role == model.RoleAdmin {
		n, err := s.accounts.CountByRole(ctx, model.RoleAdmin)
		if err != nil {
			return model.Account{}, fmt.Errorf("count admins: %w", err)
		}
		if n > 0 {
			if _, err := accountFor(ctx, s.accounts, id.UID, model.RoleAdmin); err != nil {
				return model.Account{}, err
			}
			if req.UID == "" || req.UID == id.UID {
				return model.Account{}, invalid("uid of the new admin is required")
			}
			uid = req.UID
		}
	} else if req.UID != "" && req.UID != id.UID {
		return model.Account{}, ErrForbidden
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if uid == id.UID {
		if req.Email == "" {
			req.Email = strings.ToLower(id.Email)
		}
		if req.Name == "" {
			req.Name = id.Name
		}
	}
	if req.Name == "" || req.Email == "" || req.Phone == "" {
		return model.Account{}, invalid("name, email and phone are required")
	}
	if !isValidEmail(req.Email) {
		return model.Account{}, invalid("invalid email address")
	}
	if !isValidPhone(req.Phone) {
		return model.Account{}, invalid("invalid phone number")
	}

	a := model.Account{
		ID:        uuid.New().String(),
		UID:       uid,
		Role:      role,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		CreatedAt: s.clk.Now(),
	}
	if role == model.RoleVendor {
		a.PayoutRecipient = strings.TrimSpace(req.PayoutRecipient)
	}

	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Account{}, err
		}
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.log.Info().Str("account_id", a.ID).Str("role", string(role)).Msg("account created")
	return a, nil
}

// Role returns the role of the caller's account.
func (s *AccountService) Role(ctx context.Context, uid string) (model.Role, error) {
	if uid == "" {
		return "", ErrUnauthenticated
	}
	a, err := s.accounts.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("role lookup: %w", err)
	}
	return a.Role, nil
}

// Lookup returns the account of uid, or ErrNotFound.
func (s *AccountService) Lookup(ctx context.Context, uid string) (model.Account, error) {
	return s.accounts.GetByUID(ctx, uid)
}

// List returns every account with role. Admin only.
func (s *AccountService) List(ctx context.Context, uid string, role model.Role) ([]model.Account, error) {
	if _, err := accountFor(ctx, s.accounts, uid, model.RoleAdmin); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// isValidPhone accepts 7 to 15 digits with an optional leading '+' and the
// usual separators.
func isValidPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
