// Package discord posts messages to a Discord webhook and obeys the
// rate limits the server reports back.
//
// A Webhook keeps the last seen X-RateLimit-* state. When the server says the
// bucket is empty, the next Send waits for the reset time before posting. A 429
// is retried after Retry-After without counting as a new message.
package discord
