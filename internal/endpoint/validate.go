package endpoint

import (
	"net/url"
	"strings"
)

const (
	// DeprecatedSlackChannelError rejects the legacy per-endpoint channel
	// override for slack connectors.
	DeprecatedSlackChannelError = "the channel field is deprecated"
	// HTTPSSchemeRequiredError rejects plain HTTP targets for ITSM
	// connectors.
	HTTPSSchemeRequiredError = `the endpoint URL must start with "https"`
	// UnsupportedKindError rejects kinds outside the tenant's operating
	// mode.
	UnsupportedKindError = "unsupported endpoint kind"

	subKindSlack      = "slack"
	subKindServiceNow = "servicenow"
	subKindSplunk     = "splunk"
)

// ValidateProperties runs the kind-specific structural checks. previous is
// the stored endpoint on update, nil on create: slack channel checks compare
// against the previously persisted extras.
func ValidateProperties(ep *Endpoint, previous *Endpoint) error {
	if ep.Properties == nil {
		return NewValidationError("properties are required")
	}

	switch ep.Kind {
	case KindCamel:
		props, ok := ep.Properties.(*CamelProperties)
		if !ok {
			return NewValidationError("properties do not match endpoint kind %q", ep.Kind)
		}
		switch ep.SubKind {
		case subKindSlack:
			var prevProps *CamelProperties
			if previous != nil {
				prevProps, _ = previous.Properties.(*CamelProperties)
			}
			return checkSlackChannel(props, prevProps)
		case subKindServiceNow, subKindSplunk:
			return checkHTTPSScheme(props.URL)
		}
	case KindWebhook:
		props, ok := ep.Properties.(*WebhookProperties)
		if !ok {
			return NewValidationError("properties do not match endpoint kind %q", ep.Kind)
		}
		if _, err := url.ParseRequestURI(props.URL); err != nil {
			return NewValidationError("invalid webhook URL %q", props.URL)
		}
	case KindEmailSubscription, KindDrawer:
		if _, ok := ep.Properties.(*SystemSubscriptionProperties); !ok {
			return NewValidationError("properties do not match endpoint kind %q", ep.Kind)
		}
	}
	return nil
}

// checkSlackChannel rejects any newly supplied channel extra. On update a
// channel value identical to the stored one is tolerated so that clients
// echoing the stored state back do not fail.
func checkSlackChannel(props, previous *CamelProperties) error {
	channel, ok := props.Extras["channel"]
	if !ok {
		return nil
	}
	if previous == nil {
		return NewValidationError(DeprecatedSlackChannelError)
	}
	if channel != previous.Extras["channel"] {
		return NewValidationError(DeprecatedSlackChannelError)
	}
	return nil
}

func checkHTTPSScheme(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(parsed.Scheme, "https") {
		return NewValidationError(HTTPSSchemeRequiredError)
	}
	return nil
}
