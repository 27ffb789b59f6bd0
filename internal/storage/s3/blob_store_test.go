package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Middleware short-circuits the request pipeline with output or err.
func mockS3Middleware(output interface{}, err error) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Finalize.Add(
			middleware.FinalizeMiddlewareFunc("MockMiddleware", func(context.Context, middleware.FinalizeInput, middleware.FinalizeHandler) (middleware.FinalizeOutput, middleware.Metadata, error) {
				return middleware.FinalizeOutput{
					Result: output,
				}, middleware.Metadata{}, err
			}),
			middleware.Before,
		)
	}
}

func clientWith(output interface{}, err error) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: "eu-central-1"}, func(o *s3.Options) {
		o.UsePathStyle = true
		o.APIOptions = append(o.APIOptions, mockS3Middleware(output, err))
	})
}

func TestPutObjectViaMiddleware(t *testing.T) {
	store, err := New(clientWith(&s3.PutObjectOutput{}, nil), Config{Bucket: "diag", Prefix: "runs/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.TODO(), "blocked.html", "text/html", strings.NewReader("body"))
	assert.NoError(t, err)
	assert.Equal(t, "s3://diag/runs/blocked.html", uri)

	failing, err := New(clientWith(nil, errors.New("aws error")), Config{Bucket: "diag"})
	require.NoError(t, err)
	_, err = failing.PutObject(context.TODO(), "blocked.html", "text/html", strings.NewReader("body"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to put object")
}

type recordingAPI struct {
	input *s3.PutObjectInput
	body  string
}

func (r *recordingAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	r.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestPutObjectSendsBody(t *testing.T) {
	api := &recordingAPI{}
	store, err := New(api, Config{Bucket: "diag"})
	require.NoError(t, err)

	_, err = store.PutObject(context.TODO(), "a/b.txt", "", strings.NewReader("URL: x"))
	require.NoError(t, err)
	assert.Equal(t, "diag", aws.ToString(api.input.Bucket))
	assert.Equal(t, "a/b.txt", aws.ToString(api.input.Key))
	assert.Nil(t, api.input.ContentType)
	assert.Equal(t, "URL: x", api.body)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(&recordingAPI{}, Config{})
	assert.Error(t, err)

	store, err := New(&recordingAPI{}, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.TODO(), "", "", strings.NewReader(""))
	assert.Error(t, err)
}

func TestNewClientHonoursEndpoint(t *testing.T) {
	client := NewClient(aws.Config{Region: "us-east-1"}, "http://localhost:9000")
	assert.Equal(t, "http://localhost:9000", aws.ToString(client.Options().BaseEndpoint))
	assert.True(t, client.Options().UsePathStyle)
}
