package transfer

type LinkedInToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// LinkedInProfile is the normalized profile shape. Both the OpenID userinfo
// endpoint and the legacy people API are mapped into it.
type LinkedInProfile struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// PostCreation carries everything CreatePost needs to assemble a share.
type PostCreation struct {
	Content       string
	ImageURLs     []string
	UploadedFiles []UploadedFile
	ArticleURL    string
	PostType      string
	CompanyPageID string
}

// UploadedFile is an in-memory image handed over by the HTTP layer.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type PostMetrics struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Impressions int `json:"impressions"`
}

type DeleteResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
	Note    string `json:"note,omitempty"`
}
