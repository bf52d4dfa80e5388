package data

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"wikid/internal/kv"
)

// AddUser registers a user with a bcrypt-hashed password and reports
// whether it was the first user in the store (which triggers the root
// page bootstrap).
func (s *Store) AddUser(name, password string) (first bool, err error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	info := &UserInfo{ID: NewUserID(), Name: name, PasswordHash: string(hash)}
	err = s.kv.Update(func(tx *kv.Txn) error {
		existing, err := tx.Get(tableUserID, nameKey(name))
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrUserAlreadyExists
		}

		first = true
		err = tx.AscendRange(tableUserID, nil, nil, func(_, _ []byte) (bool, error) {
			first = false
			return false, nil
		})
		if err != nil {
			return err
		}

		if err := tx.Put(tableUserID, nameKey(name), info.ID.Bytes()); err != nil {
			return err
		}
		return putUserInfo(tx, info)
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

// GetUser returns a user record by name.
func (s *Store) GetUser(name string) (*UserInfo, error) {
	var info *UserInfo
	err := s.kv.View(func(tx *kv.Txn) error {
		raw, err := tx.Get(tableUserID, nameKey(name))
		if err != nil {
			return err
		}
		if raw == nil {
			return ErrUserNotFound
		}
		info, err = getUserInfo(tx, userIDFromBytes(raw))
		if err != nil {
			return err
		}
		if info == nil {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Authenticate verifies a name/password pair against the stored hash.
func (s *Store) Authenticate(name, password string) (*UserInfo, error) {
	info, err := s.GetUser(name)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(info.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUserNotFound
	}
	return info, nil
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.kv.Update(func(tx *kv.Txn) error {
		raw, err := tx.Get(tableUserID, nameKey(name))
		if err != nil {
			return err
		}
		if raw == nil {
			return ErrUserNotFound
		}
		info, err := getUserInfo(tx, userIDFromBytes(raw))
		if err != nil {
			return err
		}
		if info == nil {
			return ErrUserNotFound
		}
		info.PasswordHash = string(hash)
		return putUserInfo(tx, info)
	})
}

// DeleteUser removes a user. Page and asset records keep the name they
// were written with.
func (s *Store) DeleteUser(name string) error {
	return s.kv.Update(func(tx *kv.Txn) error {
		raw, err := tx.Get(tableUserID, nameKey(name))
		if err != nil {
			return err
		}
		if raw == nil {
			return ErrUserNotFound
		}
		if _, err := tx.Delete(tableUserID, nameKey(name)); err != nil {
			return err
		}
		_, err = tx.Delete(tableUserInfo, raw)
		return err
	})
}

// ListUsers returns every registered user name, ascending.
func (s *Store) ListUsers() ([]string, error) {
	var names []string
	err := s.kv.View(func(tx *kv.Txn) error {
		return tx.AscendRange(tableUserID, nil, nil, func(key, _ []byte) (bool, error) {
			names = append(names, string(key))
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func userIDFromBytes(raw []byte) UserID {
	var id UserID
	copy(id.UUID[:], raw)
	return id
}
