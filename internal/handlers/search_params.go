package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/services"
)

const filterParamPrefix = "filter_"

var errInvalidPage = errors.New("page query string must be a number 1 or greater")

// userFilterFields are the users-index fields callers may filter on
var userFilterFields = []string{"id", "organisations", "organisationCategories", "services", "statusId", "lastLogin"}

var deviceFilterFields = []string{"statusId"}

// parseSearchParams reads search inputs from the query string. Filters are
// read from filter_<field> parameters, repeated or comma separated.
func parseSearchParams(values url.Values, filterFields []string) (services.SearchParams, error) {
	params := services.SearchParams{
		Criteria:      values.Get("criteria"),
		Page:          1,
		SortBy:        values.Get("sortBy"),
		SortAscending: !strings.EqualFold(values.Get("sortDirection"), "desc"),
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return services.SearchParams{}, errInvalidPage
		}
		params.Page = page
	}

	if raw := values.Get("searchFields"); raw != "" {
		params.SearchFields = splitValues([]string{raw})
	}

	for _, field := range filterFields {
		if vals := splitValues(values[filterParamPrefix+field]); len(vals) > 0 {
			params.Filters = append(params.Filters, index.Filter{Field: field, Values: vals})
		}
	}
	return params, nil
}

// searchBodyValues converts a JSON search body into the query-string shape.
// Each property may be a string, a number or an array of either.
func searchBodyValues(body io.Reader) (url.Values, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return url.Values{}, nil
		}
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	values := url.Values{}
	for key, msg := range raw {
		var list []any
		if err := json.Unmarshal(msg, &list); err != nil {
			var single any
			if err := json.Unmarshal(msg, &single); err != nil {
				return nil, fmt.Errorf("invalid value for %s", key)
			}
			list = []any{single}
		}
		for _, v := range list {
			switch t := v.(type) {
			case nil:
			case string:
				values.Add(key, t)
			case float64:
				values.Add(key, strconv.FormatFloat(t, 'f', -1, 64))
			case bool:
				values.Add(key, strconv.FormatBool(t))
			default:
				return nil, fmt.Errorf("invalid value for %s", key)
			}
		}
	}
	return values, nil
}

func splitValues(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, v := range strings.Split(r, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// readSearchParams picks the query string for GET and the JSON body otherwise.
func readSearchParams(r *http.Request, filterFields []string) (services.SearchParams, error) {
	if r.Method == http.MethodGet {
		return parseSearchParams(r.URL.Query(), filterFields)
	}
	values, err := searchBodyValues(r.Body)
	if err != nil {
		return services.SearchParams{}, err
	}
	return parseSearchParams(values, filterFields)
}
