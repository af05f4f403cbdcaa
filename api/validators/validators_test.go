package validators

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

type quantityBody struct {
	Quantity int     `json:"quantity" validate:"gt=0"`
	Location *string `json:"location" validate:"omitempty,max=8"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"quantity":3}`},
		{name: "empty body", body: ``, wantErr: true},
		{name: "unknown field", body: `{"quantity":3,"extra":true}`, wantErr: true},
		{name: "trailing object", body: `{"quantity":3}{"quantity":4}`, wantErr: true},
		{name: "zero quantity", body: `{"quantity":0}`, wantErr: true, field: "quantity"},
		{name: "long location", body: `{"quantity":1,"location":"aisle-12-bin-4"}`, wantErr: true, field: "location"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			var dest quantityBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, 3, dest.Quantity)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
			if tc.field != "" {
				var typed *pkgerrors.Error
				require.ErrorAs(t, err, &typed)
				details, ok := typed.Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tc.field)
			}
		})
	}
}

func TestParsePage(t *testing.T) {
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Unix(1700000000, 0), ID: uuid.New()})

	got, err := ParsePage(httptest.NewRequest("GET", "/?limit=10&cursor="+cursor, nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: cursor}, got)

	got, err = ParsePage(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, got.Limit)

	_, err = ParsePage(httptest.NewRequest("GET", "/?limit="+strconv.Itoa(pagination.MaxLimit), nil))
	require.NoError(t, err)

	bad := map[string]string{
		"/?limit=x":   "limit",
		"/?limit=0":   "limit",
		"/?limit=" + strconv.Itoa(pagination.MaxLimit+1): "limit",
		"/?cursor=%25%25":                                 "cursor",
	}
	for target, field := range bad {
		_, err := ParsePage(httptest.NewRequest("GET", target, nil))
		require.Error(t, err, target)
		var typed *pkgerrors.Error
		require.ErrorAs(t, err, &typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		assert.Contains(t, typed.Details(), field, target)
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	body := `{"quantity":1,"location":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	var dest quantityBody
	err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(body)), &dest)
	require.Error(t, err)
	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "request body too large", typed.Message())
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "trims", input: "  aisle 4  ", want: "aisle 4"},
		{name: "drops control characters", input: "bin\x00 7\t\n", want: "bin 7"},
		{name: "truncates by rune", input: "Lagerhalle Süd", maxLen: 12, want: "Lagerhalle S"},
		{name: "keeps multibyte intact", input: "ñandú", maxLen: 3, want: "ñan"},
		{name: "no limit", input: "warehouse-a", maxLen: 0, want: "warehouse-a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeString(tc.input, tc.maxLen))
		})
	}
}
