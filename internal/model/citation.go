package model

// Citation is a source reference attached to a generated answer. Every
// citation surfaced to a caller has already passed the post-response
// case check; Path is the verified storage path it resolved to.
type Citation struct {
	Title   string `json:"title"`
	Path    string `json:"path,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Annotation is a raw source reference as returned by the generation
// engine, before any authorization check. It names either a storage
// path/URL or just a quoted excerpt with a display title.
type Annotation struct {
	Title   string `json:"title"`
	Path    string `json:"path,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// SignedAccessGrant is a time-boxed, read-only URL for one storage path.
type SignedAccessGrant struct {
	Path      string `json:"path"`
	SignedURL string `json:"signed_url"`
	ExpiresAt string `json:"expires_at"`
}
