// Package catalog lists and describes Bedrock foundation models through the
// AWS SDK for Go v2 bedrock control plane client.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/aws/smithy-go"

	"github.com/papercomputeco/converse/pkg/converse"
)

// Model summarizes one foundation model.
type Model struct {
	ARN                        string   `json:"modelArn"`
	ID                         string   `json:"modelId"`
	Name                       string   `json:"modelName"`
	Provider                   string   `json:"providerName"`
	InputModalities            []string `json:"inputModalities,omitempty"`
	OutputModalities           []string `json:"outputModalities,omitempty"`
	ResponseStreamingSupported bool     `json:"responseStreamingSupported"`
	InferenceTypesSupported    []string `json:"inferenceTypesSupported,omitempty"`
	Lifecycle                  struct {
		Status string `json:"status"`
	} `json:"modelLifecycle"`
}

// Filter narrows a listing. Empty fields are not sent.
type Filter struct {
	Provider       string
	OutputModality string
	InferenceType  string
}

// API is the subset of *bedrock.Client used by the catalog.
type API interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
	GetFoundationModel(ctx context.Context, params *bedrock.GetFoundationModelInput, optFns ...func(*bedrock.Options)) (*bedrock.GetFoundationModelOutput, error)
}

// Catalog reads the foundation model catalogue.
type Catalog struct {
	api    API
	logger *slog.Logger
}

// New wraps a control plane client.
func New(api API, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{api: api, logger: logger}
}

// List returns the foundation models matching f, sorted by provider then ID.
func (c *Catalog) List(ctx context.Context, f Filter) ([]Model, error) {
	in := &bedrock.ListFoundationModelsInput{
		ByOutputModality: types.ModelModality(f.OutputModality),
		ByInferenceType:  types.InferenceType(f.InferenceType),
	}
	if f.Provider != "" {
		in.ByProvider = aws.String(f.Provider)
	}

	c.logger.Debug("listing foundation models",
		"provider", f.Provider,
		"output_modality", f.OutputModality,
		"inference_type", f.InferenceType,
	)

	out, err := c.api.ListFoundationModels(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("listing foundation models: %w", upstream(err))
	}

	models := make([]Model, 0, len(out.ModelSummaries))
	for _, s := range out.ModelSummaries {
		models = append(models, fromSummary(s))
	}

	sort.Slice(models, func(i, j int) bool {
		a, b := models[i], models[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ID < b.ID
	})

	return models, nil
}

// Get describes a single model.
func (c *Catalog) Get(ctx context.Context, id string) (*Model, error) {
	if id == "" {
		return nil, fmt.Errorf("catalog: model id is required")
	}

	c.logger.Debug("describing foundation model", "model", id)

	out, err := c.api.GetFoundationModel(ctx, &bedrock.GetFoundationModelInput{
		ModelIdentifier: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("describing model %q: %w", id, upstream(err))
	}
	if out.ModelDetails == nil {
		return nil, fmt.Errorf("catalog: model %q: %w", id, converse.ErrNoContent)
	}

	m := fromDetails(*out.ModelDetails)
	return &m, nil
}

// upstream converts an API error answered by Bedrock into a
// *converse.StatusError. Transport failures pass through unchanged.
func upstream(err error) error {
	var re *awshttp.ResponseError
	if !errors.As(err, &re) {
		return err
	}

	se := &converse.StatusError{StatusCode: re.HTTPStatusCode()}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		se.Body = ae.ErrorMessage()
		if se.Body == "" {
			se.Body = ae.ErrorCode()
		}
	}
	return se
}

func fromSummary(s types.FoundationModelSummary) Model {
	m := Model{
		ARN:                        aws.ToString(s.ModelArn),
		ID:                         aws.ToString(s.ModelId),
		Name:                       aws.ToString(s.ModelName),
		Provider:                   aws.ToString(s.ProviderName),
		InputModalities:            modalities(s.InputModalities),
		OutputModalities:           modalities(s.OutputModalities),
		ResponseStreamingSupported: aws.ToBool(s.ResponseStreamingSupported),
		InferenceTypesSupported:    inferenceTypes(s.InferenceTypesSupported),
	}
	if s.ModelLifecycle != nil {
		m.Lifecycle.Status = string(s.ModelLifecycle.Status)
	}
	return m
}

func fromDetails(d types.FoundationModelDetails) Model {
	m := Model{
		ARN:                        aws.ToString(d.ModelArn),
		ID:                         aws.ToString(d.ModelId),
		Name:                       aws.ToString(d.ModelName),
		Provider:                   aws.ToString(d.ProviderName),
		InputModalities:            modalities(d.InputModalities),
		OutputModalities:           modalities(d.OutputModalities),
		ResponseStreamingSupported: aws.ToBool(d.ResponseStreamingSupported),
		InferenceTypesSupported:    inferenceTypes(d.InferenceTypesSupported),
	}
	if d.ModelLifecycle != nil {
		m.Lifecycle.Status = string(d.ModelLifecycle.Status)
	}
	return m
}

func modalities(in []types.ModelModality) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func inferenceTypes(in []types.InferenceType) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
