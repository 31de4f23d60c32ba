// Package users talks to the user backend on behalf of the console.
//
// # Components
//
//   - Client: REST client for the user endpoints (get, update, list, delete,
//     login, change password). Idempotent reads are retried with backoff.
//   - User: the public user model. Decoding normalizes the field spellings
//     used by older backends and drops everything the console does not show.
//   - ValidateUpdate, ValidateFields, PasswordPolicy: client-side checks run
//     before anything is sent.
//   - SanitizeText, RenderBioPreview: user supplied text is reduced to plain
//     text on write, and bios are previewed as markdown with raw HTML omitted.
//   - ProfileEditor: edit buffer for one profile. It loads once, tracks
//     per-field errors and submits only the fields that changed.
//   - RecordFetcher: adapts ListUsers to the table engine's Fetcher.
//
// # Quick Start
//
//	client, err := users.NewClient(users.ClientOptions{
//		BaseURL: "http://localhost:8000",
//		Tokens:  sessions,
//	})
//	if err != nil {
//		return err
//	}
//	page, err := client.ListUsers(ctx, 1, 50)
//
// The backend's error bodies are never surfaced. Failures are reported as
// structured errors from pkg/errors carrying only the operation and status.
package users
