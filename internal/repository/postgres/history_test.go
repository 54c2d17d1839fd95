package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "contact_id", "campaign_id", "sdr_id", "channel", "phone",
		"email", "outcome", "delay_seconds", "break_taken", "error_message",
		"contacted_at",
	})
}

func TestLastContactEmailOnly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// An email-only lookup binds a single parameter. Binding phone = ''
	// here would match the ledger rows of every other phone-less contact.
	now := time.Now()
	email := "maria@example.com"
	mock.ExpectQuery(`WHERE email = \$1\s+ORDER BY contacted_at DESC`).
		WithArgs(email).
		WillReturnRows(historyRows().AddRow(
			"h-1", "c-1", "camp-1", nil, "email", "",
			email, "sent", nil, nil, nil, now,
		))

	repo := NewHistoryRepo(db)
	rec, err := repo.LastContact(context.Background(), "", &email)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "c-1", rec.ContactID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastContactPhoneOnly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE phone = \$1\s+ORDER BY contacted_at DESC`).
		WithArgs("+5511999990000").
		WillReturnRows(historyRows().AddRow(
			"h-2", "c-2", "camp-1", nil, "whatsapp", "+5511999990000",
			nil, "sent", nil, nil, nil, now,
		))

	repo := NewHistoryRepo(db)
	rec, err := repo.LastContact(context.Background(), "+5511999990000", nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "c-2", rec.ContactID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastContactBothIdentities(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	email := "maria@example.com"
	mock.ExpectQuery(`WHERE phone = \$1 OR email = \$2`).
		WithArgs("+5511999990000", email).
		WillReturnRows(historyRows())

	repo := NewHistoryRepo(db)
	rec, err := repo.LastContact(context.Background(), "+5511999990000", &email)
	require.NoError(t, err)
	assert.Nil(t, rec, "no ledger rows means never contacted")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastContactNoIdentities(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// Nothing to match on: report never-contacted without touching the DB.
	repo := NewHistoryRepo(db)
	empty := ""
	rec, err := repo.LastContact(context.Background(), "", &empty)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}
