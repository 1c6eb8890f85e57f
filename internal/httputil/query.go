package httputil

import (
	"net/url"
	"reflect"
)

// GetURLFields returns the query parameters that are set, split by usage.
//
// queryFields contains the field names that can be passed to a gorm Where
// statement directly. Fields tagged with filterField:"false" are handled
// by explicit logic in the controller and only show up in setFields.
//
// setFields contains all field names set in the query string. This
// allows filtering for zero values without pointer fields.
func GetURLFields(url *url.URL, filter any) ([]any, []string) {
	var queryFields []any
	var setFields []string

	val := reflect.Indirect(reflect.ValueOf(filter))
	for i := 0; i < val.NumField(); i++ {
		field := val.Type().Field(i).Name
		param := val.Type().Field(i).Tag.Get("form")
		filterField := val.Type().Field(i).Tag.Get("filterField")

		if param == "" || !url.Query().Has(param) {
			continue
		}

		setFields = append(setFields, field)
		if filterField != "false" {
			queryFields = append(queryFields, field)
		}
	}

	return queryFields, setFields
}
