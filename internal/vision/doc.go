// Package vision calls the external vision-language OCR engine.
//
// The client speaks an OpenRouter-style chat completions API: one request
// per frame batch, images embedded as base64 data URIs, bearer token
// authentication. Retries follow a fixed schedule: rate limiting backs off
// linearly by attempt while timeouts and other failures wait a fixed delay.
// The sleep function is injectable so tests can assert the schedule without
// waiting.
package vision
