package factory

import (
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
)

// MergeDSN folds options into a driver DSN. For mysql the "user" and
// "password" options set the credentials and every other option becomes a
// DSN parameter. For other drivers options are merged into the query string
// after the first '?', replacing parameters of the same name.
func MergeDSN(driverName, dsn string, options map[string]string) (string, error) {
	if len(options) == 0 {
		return dsn, nil
	}
	if driverName == "mysql" {
		return mergeMySQL(dsn, options)
	}
	return mergeQuery(dsn, options)
}

func mergeMySQL(dsn string, options map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", apperrors.WrapKind(apperrors.ErrConfiguration, "invalid mysql DSN", err)
	}

	var params []string
	for _, k := range slices.Sorted(maps.Keys(options)) {
		v := options[k]
		switch k {
		case "user":
			cfg.User = v
		case "password":
			cfg.Passwd = v
		default:
			params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	merged := cfg.FormatDSN()
	if len(params) == 0 {
		return merged, nil
	}
	sep := "?"
	if strings.Contains(merged, "?") {
		sep = "&"
	}
	merged += sep + strings.Join(params, "&")

	// Re-parse so options the driver knows land in typed fields.
	cfg, err = mysql.ParseDSN(merged)
	if err != nil {
		return "", apperrors.WrapKind(apperrors.ErrConfiguration, "invalid mysql option", err)
	}
	return cfg.FormatDSN(), nil
}

func mergeQuery(dsn string, options map[string]string) (string, error) {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", apperrors.WrapKind(apperrors.ErrConfiguration, "invalid DSN query string", err)
	}
	for k, v := range options {
		query.Set(k, v)
	}
	return base + "?" + query.Encode(), nil
}
