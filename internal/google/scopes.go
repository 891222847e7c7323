package google

// DriveScopes are the OAuth scopes a linked account must have granted for
// listing, uploading, downloading and deleting Drive files.
var DriveScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/drive",
}
