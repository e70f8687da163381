// Package migrations embeds the goose SQL migration set for the core schema (users, servers, channels,
// memberships, messages, server_invites).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
