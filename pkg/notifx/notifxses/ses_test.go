package notifxses

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/notifx"
)

const sendEmailOK = `<SendEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendEmailResult><MessageId>msg-1</MessageId></SendEmailResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</SendEmailResponse>`

const sendEmailRejected = `<ErrorResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <Error><Type>Sender</Type><Code>MessageRejected</Code><Message>Email address is not verified.</Message></Error>
  <RequestId>req-2</RequestId>
</ErrorResponse>`

func newTestProvider(t *testing.T, h http.HandlerFunc) *SESProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := ses.New(ses.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
		}),
		RetryMaxAttempts: 1,
	})
	return NewSESProvider(client, "noreply@culturalsoundlab.com")
}

func TestSendEmail_BuildsRequest(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, sendEmailOK)
	})

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"artist@example.com"},
		Subject:  "Your sound logo is ready",
		TextBody: "Listen now",
	}, notifx.WithConfigID("transactional"), notifx.WithTags(map[string]string{"kind": "generation"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := map[string]string{
		"Action":                           "SendEmail",
		"Source":                           "noreply@culturalsoundlab.com",
		"Destination.ToAddresses.member.1": "artist@example.com",
		"Message.Subject.Data":             "Your sound logo is ready",
		"Message.Body.Text.Data":           "Listen now",
		"ConfigurationSetName":             "transactional",
		"Tags.member.1.Name":               "kind",
	}
	for k, want := range checks {
		if got := form.Get(k); got != want {
			t.Errorf("%s: expected %q, got %q", k, want, got)
		}
	}
}

func TestSendEmail_RejectedMapsToSendFailed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, sendEmailRejected)
	})

	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"x@example.com"}, Subject: "s"})
	if !errx.HasCode(err, notifx.ErrSendFailed) {
		t.Fatalf("expected send failed, got %v", err)
	}
}
