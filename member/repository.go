package member

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/sessiongate/storage"
)

const (
	membersBucket = "members"
	loginsBucket  = "member_logins"
)

// StorageRepository implements Repository on top of a storage.Repository.
// Members are stored as JSON by id, with a secondary index from login id
// to member id written in the same batch.
type StorageRepository struct {
	repo storage.Repository
}

var _ Repository = (*StorageRepository)(nil)

// NewRepository returns a member Repository backed by repo.
func NewRepository(repo storage.Repository) *StorageRepository {
	return &StorageRepository{repo: repo}
}

func (r *StorageRepository) FindByID(ctx context.Context, id string) (Member, error) {
	data, err := r.repo.Get(ctx, membersBucket, id)
	if err != nil {
		return Member{}, mapStorageError(err)
	}
	var m Member
	if err := json.Unmarshal(data, &m); err != nil {
		return Member{}, fmt.Errorf("decoding member %s: %w", id, err)
	}
	return m, nil
}

func (r *StorageRepository) FindByLoginID(ctx context.Context, loginID string) (Member, error) {
	id, err := r.repo.Get(ctx, loginsBucket, loginID)
	if err != nil {
		return Member{}, mapStorageError(err)
	}
	return r.FindByID(ctx, string(id))
}

func (r *StorageRepository) Save(ctx context.Context, m Member) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding member: %w", err)
	}
	err = r.repo.Batch(ctx, func(tx storage.BatchTx) error {
		if err := tx.PutIfAbsent(loginsBucket, m.LoginID, []byte(m.ID)); err != nil {
			if errors.Is(err, storage.ErrExists) {
				return fmt.Errorf("%s: %w", m.LoginID, ErrDuplicateLoginID)
			}
			return err
		}
		return tx.PutIfAbsent(membersBucket, m.ID, data)
	})
	if err != nil {
		return fmt.Errorf("saving member: %w", err)
	}
	return nil
}

func (r *StorageRepository) List(ctx context.Context) ([]Member, error) {
	ids, err := r.repo.List(ctx, membersBucket)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		m, err := r.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func mapStorageError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
