package user

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewService(NewRepository(mock), "test-secret"), mock
}

func TestService_Register(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("akinyi", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	u, err := svc.Register(context.Background(), &RegisterRequest{Username: "akinyi", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("pass1234")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Register_Empty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), &RegisterRequest{Username: "akinyi"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_LoginAndValidate(t *testing.T) {
	svc, mock := newTestService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("pass1234"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("akinyi").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password"}).AddRow(int64(3), "akinyi", string(hash)))

	res, err := svc.Login(context.Background(), &RegisterRequest{Username: "akinyi", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ID)
	require.NotEmpty(t, res.AccessToken)

	id, name, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, "akinyi", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Login_Failures(t *testing.T) {
	svc, mock := newTestService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("akinyi").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password"}).AddRow(int64(3), "akinyi", string(hash)))
	mock.ExpectQuery("SELECT id, username, password FROM users").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = svc.Login(context.Background(), &RegisterRequest{Username: "akinyi", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), &RegisterRequest{Username: "ghost", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ValidateToken_WrongSecret(t *testing.T) {
	svc, _ := newTestService(t)
	other := NewService(nil, "other-secret")

	token, err := other.issueToken(&User{ID: 1, Username: "x"})
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
