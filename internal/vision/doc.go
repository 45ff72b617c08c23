// Package vision defines the contract with the external vision service that
// proposes feature annotations for bird images: the request, the JSON schema
// the service answers with, the fixed annotation prompt and the validation
// that turns raw proposals into domain candidates.
package vision
