// Package gemini implements vision.Client on Google's Gemini API through the
// google.golang.org/genai SDK.
//
// Each Annotate call sends the image (inline bytes for local files, a file URI
// otherwise) together with the annotation prompt, requests a JSON response
// constrained by a schema, and classifies failures:
//
//   - HTTP 408, 429 and 5xx, request timeouts and network errors are
//     transient and wrap domain.ErrTransientService.
//   - Other 4xx errors, safety blocks and empty or unparsable responses are
//     permanent and wrap domain.ErrPermanentService.
//
// Retrying is left to the caller.
package gemini
