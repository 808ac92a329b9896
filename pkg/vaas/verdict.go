package vaas

// VerdictKind is the server's classification of an artifact.
type VerdictKind string

const (
	// Clean means no malicious content was found.
	Clean VerdictKind = "Clean"
	// Malicious means the artifact was positively identified as malware.
	Malicious VerdictKind = "Malicious"
	// Pup means the artifact is a potentially unwanted program.
	Pup VerdictKind = "Pup"
	// Unknown means the server has not analyzed this artifact before.
	Unknown VerdictKind = "Unknown"
)

// VaasVerdict is the immutable result of a single orchestrator operation.
type VaasVerdict struct {
	Sha256     Sha256
	Verdict    VerdictKind
	Detection  string // optional; empty when not provided
	FileType   string // optional; empty when not provided
	MimeType   string // optional; empty when not provided
}

// hasFullMetadata reports whether detection/fileType/mimeType are all set,
// used by for_file's tie-break between hash-lookup and upload fallback.
func (v VaasVerdict) hasFullMetadata() bool {
	return v.Detection != "" && v.FileType != "" && v.MimeType != ""
}

// verdictRequest is the outbound frame-transport message for a single
// hash/URL/stream lookup. Correlation ids are UUIDv4, unique per connection.
type verdictRequest struct {
	Kind          string `json:"kind"` // "VerdictRequest" / "VerdictRequestForUrl" / "VerdictRequestForStream"
	Sha256        string `json:"sha256,omitempty"`
	URL           string `json:"url,omitempty"`
	GUID          string `json:"guid"`
	SessionID     string `json:"session_id,omitempty"`
	UseCache      bool   `json:"use_cache"`
	UseHashLookup bool   `json:"use_hash_lookup"`
}

// verdictResponse is the inbound frame-transport message correlated to a
// verdictRequest by GUID.
type verdictResponse struct {
	Kind        string `json:"kind"`
	GUID        string `json:"guid"`
	Sha256      string `json:"sha256"`
	Verdict     string `json:"verdict"`
	URL         string `json:"url,omitempty"`
	UploadURL   string `json:"upload_url,omitempty"`
	UploadToken string `json:"upload_token,omitempty"`
	Detection   string `json:"detection,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

func (r verdictResponse) toVerdict(sha Sha256) VaasVerdict {
	return VaasVerdict{
		Sha256:    sha,
		Verdict:   VerdictKind(r.Verdict),
		Detection: r.Detection,
		FileType:  r.FileType,
		MimeType:  r.MimeType,
	}
}

// authRequest is sent as the single handshake frame on a new frame transport
// connection.
type authRequest struct {
	Kind      string  `json:"kind"`
	Token     string  `json:"token"`
	SessionID *string `json:"session_id"`
}

// authResponse is the handshake's reply frame.
type authResponse struct {
	Kind      string `json:"kind"`
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// fileReport is the HTTP-transport JSON body for GET /files/{sha}/report.
type fileReport struct {
	Sha256    string `json:"sha256"`
	Verdict   string `json:"verdict"`
	Detection string `json:"detection,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

func (r fileReport) toVerdict() (VaasVerdict, error) {
	sha, err := ParseSha256(r.Sha256)
	if err != nil {
		return VaasVerdict{}, err
	}
	return VaasVerdict{
		Sha256:    sha,
		Verdict:   VerdictKind(r.Verdict),
		Detection: r.Detection,
		FileType:  r.FileType,
		MimeType:  r.MimeType,
	}, nil
}

// urlReport is the HTTP-transport JSON body for GET /urls/{id}/report.
type urlReport struct {
	Sha256    string `json:"sha256"`
	Verdict   string `json:"verdict"`
	URL       string `json:"url"`
	Detection string `json:"detection,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

func (r urlReport) toVerdict() (VaasVerdict, error) {
	var sha Sha256
	if r.Sha256 != "" {
		var err error
		sha, err = ParseSha256(r.Sha256)
		if err != nil {
			return VaasVerdict{}, err
		}
	}
	return VaasVerdict{
		Sha256:    sha,
		Verdict:   VerdictKind(r.Verdict),
		Detection: r.Detection,
		FileType:  r.FileType,
		MimeType:  r.MimeType,
	}, nil
}

// problemDetails is an RFC 7807 error body.
type problemDetails struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

const vaasClientExceptionType = "VaasClientException"

// submitIDResponse is the HTTP-transport JSON body for POST /files and
// POST /urls: both return an opaque analysis identifier.
type submitIDResponse struct {
	Sha256 string `json:"sha256"`
	ID     string `json:"id"`
}
