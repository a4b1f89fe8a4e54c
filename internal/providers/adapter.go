package providers

import "fmt"

// Message is the canonical conversation turn handed to adapters.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AuthPlacement says where a provider expects its API key.
type AuthPlacement string

const (
	AuthBearerHeader AuthPlacement = "bearer_header"
	AuthQueryParam   AuthPlacement = "query_param"
)

// Descriptor is the static definition of one provider. Loaded at startup,
// never user-editable.
type Descriptor struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Endpoint string        `json:"-"`
	Model    string        `json:"-"`
	Auth     AuthPlacement `json:"-"`
}

// Request is the prepared wire call for one provider. Adapters only build
// this triple; the shared Caller performs all network I/O.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Adapter translates canonical prompts into one provider's wire format and
// provider responses back into canonical text.
type Adapter interface {
	Descriptor() Descriptor
	BuildRequest(prompt string, prior []Message, apiKey string) (Request, error)
	// ParseResponse extracts the answer text from a 2xx body. It returns a
	// *FormatError when the expected field path is absent.
	ParseResponse(raw []byte) (string, error)
	// ParseError turns a non-2xx status and body into a human-readable
	// message. It never fails.
	ParseError(status int, raw []byte) string
}

// FormatError reports a response body missing the adapter's expected path.
type FormatError struct {
	ProviderID string
	Path       string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s response missing %s", e.ProviderID, e.Path)
}
