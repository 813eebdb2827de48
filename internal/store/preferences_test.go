// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/internal/hub"
	"github.com/propstream/propstream/pkg/errutil"
)

func TestPreferenceRepository_UpsertAlertFilter(t *testing.T) {
	tests := []struct {
		name      string
		req       hub.TopicRequest
		setupMock func(mock pgxmock.PgxPoolIface)
		errCode   string
	}{
		{
			name: "filter with price range",
			req: hub.TopicRequest{
				Regions:    []string{"austin", "dallas"},
				Types:      []string{"price-drop"},
				PriceRange: &hub.PriceRange{Min: 200000, Max: 450000},
			},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO alert_preferences`).
					WithArgs("user-42",
						[]string{"austin", "dallas"},
						[]string{"price-drop"},
						pgxmock.AnyArg(),
						pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "filter without price range",
			req: hub.TopicRequest{
				Regions: []string{"austin"},
				Types:   []string{"new-listing", "open-house"},
			},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO alert_preferences`).
					WithArgs("user-42",
						[]string{"austin"},
						[]string{"new-listing", "open-house"},
						(*int64)(nil),
						(*int64)(nil)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "database error",
			req: hub.TopicRequest{
				Regions: []string{"austin"},
			},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO alert_preferences`).
					WithArgs("user-42", []string{"austin"}, []string(nil), (*int64)(nil), (*int64)(nil)).
					WillReturnError(errors.New("connection lost"))
			},
			errCode: "PREFERENCE_UPSERT_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPreferenceRepository(mock)
			err = repo.UpsertAlertFilter(context.Background(), "user-42", tt.req)

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
