// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// AppID identifies converse to Bedrock. The SDK backend appends it to its
// own User-Agent; the HTTP clients send UserAgent.
func AppID() string {
	return "converse/" + Version
}

// UserAgent returns the User-Agent header for raw HTTP calls to Bedrock.
func UserAgent() string {
	if Sha == "" || Sha == "HEAD" {
		return AppID()
	}
	return AppID() + " (" + Sha + ")"
}
