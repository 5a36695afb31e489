// Package logger builds the application's structured slog logger: JSON in
// production, text elsewhere, tagged with the deployment environment.
package logger
