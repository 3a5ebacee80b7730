package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

func TestRespondErrorMapsCodedErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", shared.CodeTenantRootAlreadyExists.New(), http.StatusBadRequest, "T8"},
		{"uniqueness", shared.CodeTenantRoleUserExists.New(int64(1), int64(2)), http.StatusConflict, "TR4"},
		{"in use", shared.CodeTenantRoleHasUsers.New(int64(3)), http.StatusConflict, "TR14"},
		{"association missing", shared.CodeTenantRoleAssociationNotFound.New(int64(1), int64(2)), http.StatusNotFound, "TR3"},
		{"no user", shared.CodeNoCurrentUser.New(), http.StatusUnauthorized, "SYS4"},
		{"authorization", shared.CodeAuthorizationError.Wrap(errors.New("db down")), http.StatusInternalServerError, "SYS3"},
		{"bad request", shared.CodeActiveTenantDeleteParams.New(), http.StatusBadRequest, "AC1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.err.Error(), body.Detail)
		})
	}
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestForbiddenIsDistinctFromNotFound(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusFor(shared.ErrForbidden))
	assert.Equal(t, http.StatusNotFound, StatusFor(shared.CodeResourceNotFound.New()))
}

func TestPageRequestDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tenants?pageNo=3&pageSize=10&sortBy=name,%20tenantKey&asc=false", nil)
	page := PageRequest(req)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, []string{"name", "tenantKey"}, page.SortBy)
	assert.False(t, page.Ascending)

	page = PageRequest(httptest.NewRequest(http.MethodGet, "/tenants", nil))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, shared.DefaultPageSize, page.PageSize)
	assert.True(t, page.Ascending)
}

func TestBindReportsMissingFields(t *testing.T) {
	type payload struct {
		TenantID int64 `json:"tenantId" validate:"required,gt=0"`
		RoleID   int64 `json:"roleId" validate:"required,gt=0"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tenantId": 4}`))
	var p payload
	err := Bind(req, NewValidator(), &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrBadRequest)
	assert.Contains(t, err.Error(), "roleId")
}

func TestBodyIDLeavesBodyReadable(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tenantId": 4, "roleId": 9}`))
	id, err := BodyID(req, "tenantId")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(4), *id)

	type payload struct {
		TenantID int64 `json:"tenantId" validate:"required,gt=0"`
		RoleID   int64 `json:"roleId" validate:"required,gt=0"`
	}
	var p payload
	require.NoError(t, Bind(req, NewValidator(), &p))
	assert.Equal(t, payload{TenantID: 4, RoleID: 9}, p)

	for _, body := range []string{``, `not json`, `{"tenantId": "4"}`, `{"tenantId": -1}`, `{"roleId": 9}`} {
		id, err := BodyID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "tenantId")
		require.NoError(t, err)
		assert.Nil(t, id, body)
	}
}
