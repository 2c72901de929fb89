package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/cinema-ticket-booking/internal/config"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
	"github.com/iliyamo/cinema-ticket-booking/internal/utils"
)

const (
	resetEmail = "ann@example.com"
	resetCode  = "123456"
)

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := config.Config{OTPMaxAttempts: 3, OTPTTL: 10 * time.Minute, BcryptCost: bcrypt.MinCost}
	h := NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), repository.NewOTPRepo(db),
		&fakePublisher{}, zap.NewNop())
	h.Now = func() time.Time { return testNow }
	return h, mock
}

// expectActiveCode queues the user and OTP lookups for resetEmail.
func expectActiveCode(t *testing.T, mock sqlmock.Sqlmock, attempts int) {
	hash, err := utils.HashPassword(resetCode, bcrypt.MinCost)
	require.NoError(t, err)
	mock.ExpectQuery(`FROM users WHERE email=\?`).WithArgs(resetEmail).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "password_hash", "role", "membership_level",
			"total_spent_cents", "total_orders", "is_active", "created_at", "updated_at"}).
			AddRow(5, "Ann", resetEmail, "", "x", "CUSTOMER", "STANDARD", 0, 0, true, testNow, testNow))
	mock.ExpectQuery(`FROM password_otps\s+WHERE user_id=\? AND used_at IS NULL AND expires_at > \?`).
		WithArgs(5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "code_hash", "expires_at", "attempts", "used_at", "created_at"}).
			AddRow(11, 5, hash, testNow.Add(5*time.Minute), attempts, nil, testNow))
}

func TestVerifyOTPLeavesCodeUsable(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectActiveCode(t, mock, 0)

	c, rec := newCtx(http.MethodPost, "/auth/verify-otp", `{"email":"Ann@Example.com","code":" 123456 "}`, 0, "")
	require.NoError(t, h.VerifyOTP(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPBurnsCodeOnLastWrongGuess(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectActiveCode(t, mock, 2)
	mock.ExpectExec(`UPDATE password_otps SET attempts=attempts\+1 WHERE id=\?`).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT attempts FROM password_otps WHERE id=\?`).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))
	mock.ExpectExec(`UPDATE password_otps SET used_at=UTC_TIMESTAMP\(\) WHERE id=\? AND used_at IS NULL`).WithArgs(11).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, rec := newCtx(http.MethodPost, "/auth/verify-otp", `{"email":"ann@example.com","code":"000000"}`, 0, "")
	require.NoError(t, h.VerifyOTP(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"`+errBadCode.Error()+`"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPRefusesExhaustedCode(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectActiveCode(t, mock, 3)
	mock.ExpectExec(`UPDATE password_otps SET used_at=UTC_TIMESTAMP\(\)`).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))

	// Even the right code is refused once the attempts are spent.
	c, rec := newCtx(http.MethodPost, "/auth/verify-otp", `{"email":"ann@example.com","code":"123456"}`, 0, "")
	require.NoError(t, h.VerifyOTP(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	h, mock := newAuthHandler(t)
	mock.ExpectQuery(`FROM users WHERE email=\?`).WithArgs("ghost@example.com").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, rec := newCtx(http.MethodPost, "/auth/verify-otp", `{"email":"ghost@example.com","code":"123456"}`, 0, "")
	require.NoError(t, h.VerifyOTP(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"`+errBadCode.Error()+`"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordRevokesRefreshTokens(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectActiveCode(t, mock, 1)
	mock.ExpectExec(`UPDATE password_otps SET used_at=UTC_TIMESTAMP\(\)`).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET password_hash=\?`).WithArgs(sqlmock.AnyArg(), 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP\(\) WHERE user_id=\? AND revoked_at IS NULL`).WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 2))

	c, rec := newCtx(http.MethodPost, "/auth/reset-password",
		`{"email":"ann@example.com","code":"123456","new_password":"n3w-secret"}`, 0, "")
	require.NoError(t, h.ResetPassword(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"password updated"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordCodeIsSingleUse(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectActiveCode(t, mock, 0)
	// A concurrent reset consumed the code first.
	mock.ExpectExec(`UPDATE password_otps SET used_at=UTC_TIMESTAMP\(\)`).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 0))

	c, rec := newCtx(http.MethodPost, "/auth/reset-password",
		`{"email":"ann@example.com","code":"123456","new_password":"n3w-secret"}`, 0, "")
	require.NoError(t, h.ResetPassword(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordValidatesInput(t *testing.T) {
	h, mock := newAuthHandler(t)

	c, rec := newCtx(http.MethodPost, "/auth/reset-password", `{"email":"ann@example.com","code":"123456","new_password":"abc"}`, 0, "")
	require.NoError(t, h.ResetPassword(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newCtx(http.MethodPost, "/auth/reset-password", `{"email":"","code":"","new_password":"abcdef"}`, 0, "")
	require.NoError(t, h.ResetPassword(c))
	assert.JSONEq(t, `{"error":"email and code required"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
