package crawler

// RedirectHop is one redirect response observed while resolving a URL
type RedirectHop struct {
	Status int    `json:"status"` // Redirect status code (301, 302, 303, 307, 308)
	From   string `json:"from"`   // URL that answered with the redirect
	To     string `json:"to"`     // Location resolved against From
}

// FetchOutcome is the result of one logical fetch, redirects included.
// Status 0 means the fetch failed and Err says why.
type FetchOutcome struct {
	Status      int           // Status of the last response, 0 on failure
	ContentType string        // HTTP Content-Type of the last response
	Body        string        // Decoded document text, empty for non-documents
	FinalURL    string        // URL of the last response
	Chain       []RedirectHop // Redirects followed, in order
	Err         error         // Set when Status is 0
}

// Redirected reports whether at least one redirect was followed
func (o *FetchOutcome) Redirected() bool {
	return len(o.Chain) > 0
}

// RedirectedPermanently reports whether any hop was a 301
func (o *FetchOutcome) RedirectedPermanently() bool {
	for _, hop := range o.Chain {
		if hop.Status == 301 {
			return true
		}
	}
	return false
}

// PageRecord holds the metadata extracted for one path on one site
type PageRecord struct {
	Status                int      // Final HTTP status, 0 when the fetch failed
	ContentType           string   // Final Content-Type
	Title                 string   // First <title> text
	H1                    string   // First <h1> text, whitespace collapsed
	Description           string   // meta[name=description] content, whitespace collapsed
	Links                 []string // Same-origin document links, normalized and deduplicated
	Redirected            bool     // Any redirect was followed
	RedirectedPermanently bool     // Any hop was a 301
	FinalPath             string   // Normalized path of the last response
}
