// Package awsauth authorizes raw HTTP requests to Bedrock endpoints, either
// with a Bedrock API key (bearer token) or with SigV4 signed AWS credentials.
package awsauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// SigningName is used by both the runtime and control plane endpoints.
const SigningName = "bedrock"

// ErrNoCredentials is returned when neither a bearer token nor AWS credentials
// are available.
var ErrNoCredentials = errors.New("awsauth: no bedrock credentials configured")

// Authorizer adds credentials to an outgoing request. body is the exact payload
// that will be sent, which SigV4 needs to hash.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request, body []byte) error
}

// Bearer authorizes with a Bedrock API key.
type Bearer struct {
	Token string
}

func (b *Bearer) Authorize(_ context.Context, req *http.Request, _ []byte) error {
	if b.Token == "" {
		return ErrNoCredentials
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// SigV4 signs requests with credentials resolved from an AWS credentials provider.
type SigV4 struct {
	Credentials aws.CredentialsProvider
	Region      string
	Service     string

	signer *v4.Signer
	now    func() time.Time
}

// NewSigV4 returns a SigV4 authorizer for the given service and region.
func NewSigV4(provider aws.CredentialsProvider, region, service string) *SigV4 {
	return &SigV4{
		Credentials: provider,
		Region:      region,
		Service:     service,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

func (s *SigV4) Authorize(ctx context.Context, req *http.Request, body []byte) error {
	if s.Credentials == nil {
		return ErrNoCredentials
	}

	creds, err := s.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieving aws credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	if err := s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), s.Service, s.Region, s.now()); err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	return nil
}

// New picks an authorizer: the bearer token when one is set, otherwise SigV4
// with the given credentials provider. A nil provider and empty token yields
// ErrNoCredentials.
func New(token string, provider aws.CredentialsProvider, region, service string) (Authorizer, error) {
	if token != "" {
		return &Bearer{Token: token}, nil
	}
	if provider == nil {
		return nil, ErrNoCredentials
	}
	return NewSigV4(provider, region, service), nil
}
