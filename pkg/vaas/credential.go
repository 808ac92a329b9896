package vaas

// defaultTokenURL is the well-known OAuth2 token endpoint for the production
// VaaS deployment, used when a Credential does not override it.
const defaultTokenURL = "https://account.gdatasecurity.de/realms/vaas/protocol/openid-connect/token"

// grantKind discriminates the two credential variants. Adding a flow means
// adding a variant here and a branch in token.go's exchange function — no
// ambient dispatch is needed for two cases.
type grantKind int

const (
	grantClientCredentials grantKind = iota
	grantResourceOwnerPassword
)

// Credential is a discriminated union of the two supported OAuth2 grants.
// Construct one with NewClientCredential or NewPasswordCredential.
type Credential struct {
	kind         grantKind
	clientID     string
	clientSecret RedactedSecret
	username     string
	password     RedactedSecret
	tokenURL     string
}

// NewClientCredential builds a client-credentials grant Credential.
// tokenURL may be empty to use the production default.
func NewClientCredential(clientID string, clientSecret RedactedSecret, tokenURL string) Credential {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return Credential{
		kind:         grantClientCredentials,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
	}
}

// NewPasswordCredential builds a resource-owner-password-grant Credential.
// tokenURL may be empty to use the production default.
func NewPasswordCredential(clientID, username string, password RedactedSecret, tokenURL string) Credential {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return Credential{
		kind:     grantResourceOwnerPassword,
		clientID: clientID,
		username: username,
		password: password,
		tokenURL: tokenURL,
	}
}

// TokenURL returns the token endpoint this credential authenticates against.
func (c Credential) TokenURL() string {
	return c.tokenURL
}

// String never reveals secret material.
func (c Credential) String() string {
	switch c.kind {
	case grantClientCredentials:
		return "Credential{client_credentials, client_id=" + c.clientID + "}"
	case grantResourceOwnerPassword:
		return "Credential{password, client_id=" + c.clientID + ", username=" + c.username + "}"
	default:
		return "Credential{unknown}"
	}
}
