// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/pkg/errutil"
)

func TestBookmarkRepository_Add(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		errCode   string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate bookmark is a no-op",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnError(errors.New("connection lost"))
			},
			errCode: "BOOKMARK_ADD_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewBookmarkRepository(mock)
			err = repo.Add(context.Background(), "user-42", "prop-9")

			if tt.errCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.errCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestBookmarkRepository_Remove(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		errCode   string
	}{
		{
			name: "successful delete",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
			},
		},
		{
			name: "delete absent bookmark is a no-op",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM property_bookmarks`).
					WithArgs("user-42", "prop-9").
					WillReturnError(errors.New("connection lost"))
			},
			errCode: "BOOKMARK_REMOVE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewBookmarkRepository(mock)
			err = repo.Remove(context.Background(), "user-42", "prop-9")

			if tt.errCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.errCode)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestInquiryRepository_Insert(t *testing.T) {
	t.Run("successful insert returns id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO property_inquiries`).
			WithArgs(pgxmock.AnyArg(), "user-42", "prop-9", "Is this still available?").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewInquiryRepository(mock)
		id, err := repo.Insert(context.Background(), "user-42", "prop-9", "Is this still available?")
		require.NoError(t, err)
		assert.Len(t, id, 26, "id should be a ULID")

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO property_inquiries`).
			WithArgs(pgxmock.AnyArg(), "user-42", "prop-9", "hello").
			WillReturnError(errors.New("constraint violation"))

		repo := NewInquiryRepository(mock)
		_, err = repo.Insert(context.Background(), "user-42", "prop-9", "hello")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INQUIRY_INSERT_FAILED")

		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}
