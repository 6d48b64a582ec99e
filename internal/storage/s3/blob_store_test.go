package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPutObjectReturnsBucketURL(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{}
	store, err := NewWithClient(fake, Config{Bucket: "homeplanner", Region: "ap-northeast-2"})
	require.NoError(t, err)

	url, err := store.PutObject(context.Background(), "pdfs/1_1_1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF")))
	require.NoError(t, err)
	require.Equal(t, "https://homeplanner.s3.ap-northeast-2.amazonaws.com/pdfs/1_1_1.pdf", url)
	require.Equal(t, "homeplanner", aws.ToString(fake.input.Bucket))
	require.Equal(t, "pdfs/1_1_1.pdf", aws.ToString(fake.input.Key))
	require.Equal(t, "application/pdf", aws.ToString(fake.input.ContentType))
	require.Equal(t, int64(4), aws.ToInt64(fake.input.ContentLength))
	require.Equal(t, []byte("%PDF"), fake.body)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	store, err := NewWithClient(&fakeS3{err: errors.New("denied")}, Config{Bucket: "b", Region: "r"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "k", "", bytes.NewReader(nil))
	require.ErrorContains(t, err, "denied")

	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.ErrorContains(t, err, "path is required")
}

func TestNewWithClientValidates(t *testing.T) {
	t.Parallel()

	_, err := NewWithClient(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = NewWithClient(&fakeS3{}, Config{})
	require.Error(t, err)
}
