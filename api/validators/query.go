package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

// pageQuery bounds match pagination.MaxLimit and the cursor encoding.
type pageQuery struct {
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Cursor string `json:"cursor" validate:"omitempty,max=256,base64rawurl"`
}

// ParsePage reads the limit and cursor query parameters of list endpoints.
// A missing limit means pagination.DefaultLimit.
func ParsePage(r *http.Request) (pagination.Params, error) {
	q := r.URL.Query()
	page := pageQuery{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(q.Get("cursor")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"limit": "must be an integer"})
		}
		page.Limit = n
	}
	if err := validateStruct(page); err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: page.Limit, Cursor: page.Cursor}, nil
}
