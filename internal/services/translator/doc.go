// Package translator wraps an OpenRouter-style chat completion API as a
// translation backend.
package translator
