// Package auth provides authentication middleware for the confwatch HTTP
// surface.
//
// APIKey(header, key) wraps an http.Handler and validates the API key from
// the named request header. When key == "" all requests pass through (local
// use with auth disabled). A missing or wrong key is rejected with 401.
package auth
