package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
)

// ProfileUpdate holds the self-service editable fields. Nil means unchanged.
type ProfileUpdate struct {
	Email     *string
	FullName  *string
	Phone     *string
	Bio       *string
	AvatarURL *string
}

func (p ProfileUpdate) patch() models.UserPatch {
	return models.UserPatch{
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Bio:       p.Bio,
		AvatarURL: p.AvatarURL,
	}
}

type ProfileService struct {
	users    users.Repository
	resolver *SessionResolver
}

func NewProfileService(u users.Repository, resolver *SessionResolver) *ProfileService {
	return &ProfileService{users: u, resolver: resolver}
}

// Update applies upd to current. Edits to the virtual administrator stay in
// process memory.
func (s *ProfileService) Update(ctx context.Context, current *models.User, upd ProfileUpdate) (*models.User, error) {
	if current.ID == models.VirtualAdminID {
		return s.resolver.UpdateAdminProfile(upd.patch()), nil
	}

	u, err := s.users.Update(ctx, current.ID, upd.patch())
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, &common.ValidationError{Kind: common.ErrorAlreadyExists, Message: "Email already registered"}
		}
		return nil, err
	}
	return u, nil
}
