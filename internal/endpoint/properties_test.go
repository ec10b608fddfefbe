package endpoint

import (
	"strings"
	"testing"
)

func TestMarshalProperties_ExcludesSecretValues(t *testing.T) {
	t.Parallel()

	ref := int64(42)
	token := "super-secret"
	props := &WebhookProperties{
		URL: "https://example.com/hook",
		Secrets: SecretFields{
			BasicAuth:      &BasicAuth{Username: "svc", Password: "hunter2"},
			BasicAuthRef:   &ref,
			SecretToken:    &token,
			SecretTokenRef: &ref,
		},
	}

	data, err := MarshalProperties(props)
	if err != nil {
		t.Fatalf("MarshalProperties() error = %v", err)
	}
	payload := string(data)
	for _, leaked := range []string{"hunter2", "super-secret", "svc"} {
		if strings.Contains(payload, leaked) {
			t.Fatalf("marshaled properties leak %q: %s", leaked, payload)
		}
	}
	if !strings.Contains(payload, "basic_auth_ref") || !strings.Contains(payload, "secret_token_ref") {
		t.Fatalf("marshaled properties missing reference IDs: %s", payload)
	}
}

func TestUnmarshalProperties_KindDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		data string
		want any
	}{
		{KindWebhook, `{"url":"https://example.com","basic_auth_ref":7}`, &WebhookProperties{}},
		{KindCamel, `{"url":"https://example.com","extras":{"a":"b"}}`, &CamelProperties{}},
		{KindEmailSubscription, `{"only_admins":true}`, &SystemSubscriptionProperties{}},
		{KindDrawer, `{}`, &SystemSubscriptionProperties{}},
	}
	for _, tc := range tests {
		props, err := UnmarshalProperties(tc.kind, []byte(tc.data))
		if err != nil {
			t.Fatalf("%s: UnmarshalProperties() error = %v", tc.kind, err)
		}
		if props == nil {
			t.Fatalf("%s: UnmarshalProperties() = nil", tc.kind)
		}
	}

	webhook, err := UnmarshalProperties(KindWebhook, []byte(`{"url":"https://example.com","secrets":{"basic_auth_ref":7}}`))
	if err != nil {
		t.Fatalf("UnmarshalProperties() error = %v", err)
	}
	fields := webhook.SecretFields()
	if fields == nil || fields.BasicAuthRef == nil || *fields.BasicAuthRef != 7 {
		t.Fatalf("SecretFields() = %+v, want basic auth ref 7", fields)
	}

	if _, err := UnmarshalProperties(Kind("bogus"), nil); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestRedactSecrets(t *testing.T) {
	t.Parallel()

	token := "tok"
	ep := &Endpoint{
		Kind: KindWebhook,
		Properties: &WebhookProperties{
			Secrets: SecretFields{
				BasicAuth:   &BasicAuth{Username: "u", Password: "p"},
				SecretToken: &token,
			},
		},
	}
	RedactSecrets(ep)

	fields := ep.SecretFields()
	if fields.BasicAuth.Username != RedactedCredential || fields.BasicAuth.Password != RedactedCredential {
		t.Fatalf("basic auth not redacted: %+v", fields.BasicAuth)
	}
	if *fields.SecretToken != RedactedCredential {
		t.Fatalf("secret token not redacted: %q", *fields.SecretToken)
	}
	if fields.BearerToken != nil {
		t.Fatal("absent bearer token should stay absent")
	}

	// system kinds carry no secrets
	sys := &Endpoint{Kind: KindDrawer, Properties: &SystemSubscriptionProperties{}}
	RedactSecrets(sys)
}
