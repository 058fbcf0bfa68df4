// Package store mediates all reads and writes of users and contacts on the
// MySQL database. Every contact operation is scoped by the owning user's id,
// so one user can never see or touch another user's records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row. Handlers map it to
// HTTP 404; it is not a store failure.
var ErrNotFound = errors.New("record not found")

// ErrEmailTaken is returned by CreateUser when the email address is already
// registered.
var ErrEmailTaken = errors.New("email already registered")

// mysqlDuplicateEntry is the MySQL error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// Store is a handle to the database. It prepares the hot statements once so
// that repeated executions skip the parse step.
type Store struct {
	db *sqlx.DB

	insertContact     *sqlx.NamedStmt
	selectByOwner     *sqlx.Stmt
	selectByOwnerPage *sqlx.Stmt
	selectByOwnerId   *sqlx.Stmt
	deleteByOwnerId   *sqlx.Stmt
	insertUser        *sqlx.NamedStmt
	selectUserByEmail *sqlx.Stmt
	selectUserById    *sqlx.Stmt
}

// OpenDatabase initializes and returns a database connection with the
// specified data source name.
func OpenDatabase(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	return sqlDB, nil
}

// DSNFromEnv builds a data source name from the system's environment
// variables, the way the migration and wait tools expect it.
func DSNFromEnv() string {
	name := os.Getenv("DBNAME")
	if name == "" {
		name = "contacts"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
		os.Getenv("DBUSER"), os.Getenv("DBPWD"), os.Getenv("DBHOST"), name)
}

// New wraps the specified sql database with the sqlx layer and prepares all
// statements. The database argument can be a real database for production use
// or a mock database within unit tests.
func New(sqlDB *sql.DB) (*Store, error) {
	s := &Store{db: sqlx.NewDb(sqlDB, "mysql")}

	var err error
	s.insertContact, err = s.db.PrepareNamed(`
		INSERT INTO contacts (owner_id, firstname, lastname, email, phone, birthday, additional_info, is_favorite)
		VALUES (:owner_id, :firstname, :lastname, :email, :phone, :birthday, :additional_info, :is_favorite)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing contact insert: %w", err)
	}
	s.selectByOwner, err = s.db.Preparex(`
		SELECT * FROM contacts WHERE owner_id = ? ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing contact select: %w", err)
	}
	s.selectByOwnerPage, err = s.db.Preparex(`
		SELECT * FROM contacts WHERE owner_id = ? ORDER BY id LIMIT ? OFFSET ?
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing contact page select: %w", err)
	}
	s.selectByOwnerId, err = s.db.Preparex(`
		SELECT * FROM contacts WHERE owner_id = ? AND id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing contact select by id: %w", err)
	}
	s.deleteByOwnerId, err = s.db.Preparex(`
		DELETE FROM contacts WHERE owner_id = ? AND id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing contact delete: %w", err)
	}
	s.insertUser, err = s.db.PrepareNamed(`
		INSERT INTO users (username, email, password_hash, role, confirmed)
		VALUES (:username, :email, :password_hash, :role, :confirmed)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing user insert: %w", err)
	}
	s.selectUserByEmail, err = s.db.Preparex(`
		SELECT * FROM users WHERE email = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing user select by email: %w", err)
	}
	s.selectUserById, err = s.db.Preparex(`
		SELECT * FROM users WHERE id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing user select by id: %w", err)
	}
	return s, nil
}

// ContactsByOwner returns all contacts of the specified owner in id order.
// It never returns nil on success; no matches yields an empty slice.
func (s *Store) ContactsByOwner(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	contacts := []model.Contact{}
	if err := s.selectByOwner.SelectContext(ctx, &contacts, ownerID); err != nil {
		return nil, fmt.Errorf("selecting contacts of user %d: %w", ownerID, err)
	}
	return contacts, nil
}

// ContactsPage returns one page of the owner's contacts.
func (s *Store) ContactsPage(ctx context.Context, ownerID int64, limit, offset int) ([]model.Contact, error) {
	contacts := []model.Contact{}
	if err := s.selectByOwnerPage.SelectContext(ctx, &contacts, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("selecting contact page of user %d: %w", ownerID, err)
	}
	return contacts, nil
}

// ContactByID returns the owner's contact with the given id, or ErrNotFound.
func (s *Store) ContactByID(ctx context.Context, ownerID, id int64) (model.Contact, error) {
	var contact model.Contact
	err := s.selectByOwnerId.GetContext(ctx, &contact, ownerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("selecting contact %d of user %d: %w", id, ownerID, err)
	}
	return contact, nil
}

// CreateContact inserts the contact and fills in the assigned id.
func (s *Store) CreateContact(ctx context.Context, contact *model.Contact) error {
	result, err := s.insertContact.ExecContext(ctx, contact)
	if err != nil {
		return fmt.Errorf("inserting contact: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading contact insert id: %w", err)
	}
	contact.Id = id
	return nil
}

// UpdateContact applies the non-nil fields of the patch to the owner's
// contact. The UPDATE statement is assembled dynamically so that only the
// submitted values are touched. Returns ErrNotFound when the contact does
// not exist or belongs to somebody else.
func (s *Store) UpdateContact(ctx context.Context, ownerID, id int64, patch model.ContactPatch) error {
	var args []interface{}
	stmt := "UPDATE contacts SET "
	if patch.FirstName != nil {
		args = append(args, *patch.FirstName)
		stmt += "firstname=?, "
	}
	if patch.LastName != nil {
		args = append(args, *patch.LastName)
		stmt += "lastname=?, "
	}
	if patch.Email != nil {
		args = append(args, *patch.Email)
		stmt += "email=?, "
	}
	if patch.Phone != nil {
		args = append(args, *patch.Phone)
		stmt += "phone=?, "
	}
	if patch.Birthday != nil {
		args = append(args, *patch.Birthday)
		stmt += "birthday=?, "
	}
	if patch.AdditionalInfo != nil {
		args = append(args, *patch.AdditionalInfo)
		stmt += "additional_info=?, "
	}
	if patch.IsFavorite != nil {
		args = append(args, *patch.IsFavorite)
		stmt += "is_favorite=?, "
	}
	if len(args) == 0 {
		return errors.New("no values to be updated")
	}
	stmt = stmt[:len(stmt)-2]
	stmt += " WHERE owner_id=? AND id=?"
	args = append(args, ownerID, id)

	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("updating contact %d of user %d: %w", id, ownerID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFavorite flips the favorite flag on the owner's contact.
func (s *Store) SetFavorite(ctx context.Context, ownerID, id int64, favorite bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET is_favorite=? WHERE owner_id=? AND id=?", favorite, ownerID, id)
	if err != nil {
		return fmt.Errorf("setting favorite on contact %d of user %d: %w", id, ownerID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContact removes the owner's contact with the given id.
func (s *Store) DeleteContact(ctx context.Context, ownerID, id int64) error {
	result, err := s.deleteByOwnerId.ExecContext(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("deleting contact %d of user %d: %w", id, ownerID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser inserts a new account and fills in the assigned id. A duplicate
// email yields ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	result, err := s.insertUser.ExecContext(ctx, user)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user insert id: %w", err)
	}
	user.Id = id
	return nil
}

// UserByEmail returns the account registered under the email address, or
// ErrNotFound.
func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	err := s.selectUserByEmail.GetContext(ctx, &user, email)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return user, nil
}

// UserByID returns the account with the given id, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id int64) (model.User, error) {
	var user model.User
	err := s.selectUserById.GetContext(ctx, &user, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("selecting user %d: %w", id, err)
	}
	return user, nil
}

// UpdateRefreshToken stores the user's current refresh token. Passing nil
// clears it, which invalidates the refresh flow until the next login.
func (s *Store) UpdateRefreshToken(ctx context.Context, userID int64, token *string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token=? WHERE id=?", token, userID); err != nil {
		return fmt.Errorf("updating refresh token of user %d: %w", userID, err)
	}
	return nil
}

// ConfirmEmail marks the user's email address as verified.
func (s *Store) ConfirmEmail(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET confirmed=true WHERE id=?", userID); err != nil {
		return fmt.Errorf("confirming email of user %d: %w", userID, err)
	}
	return nil
}

// UpdatePassword replaces the user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, userID); err != nil {
		return fmt.Errorf("updating password of user %d: %w", userID, err)
	}
	return nil
}
