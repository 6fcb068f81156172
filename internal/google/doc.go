// Package google handles OAuth2 authorization and token storage for the
// Google Calendar event source.
//
// Tokens are stored per account as JSON under the user cache directory
// (calmerge/google-<account>.token, 0600). The OAuth client itself is read
// from CALMERGE_GOOGLE_CLIENT_ID and CALMERGE_GOOGLE_CLIENT_SECRET.
package google
