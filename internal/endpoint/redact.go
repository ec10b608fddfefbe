package endpoint

// RedactedCredential replaces secret values on read paths when the caller
// lacks write permission on the integration.
const RedactedCredential = "*****"

// RedactSecrets masks every populated credential value in place. Reference
// IDs are untouched.
func RedactSecrets(ep *Endpoint) {
	fields := ep.SecretFields()
	if fields == nil {
		return
	}
	if fields.BasicAuth != nil {
		fields.BasicAuth.Username = RedactedCredential
		fields.BasicAuth.Password = RedactedCredential
	}
	if fields.SecretToken != nil {
		redacted := RedactedCredential
		fields.SecretToken = &redacted
	}
	if fields.BearerToken != nil {
		redacted := RedactedCredential
		fields.BearerToken = &redacted
	}
}
