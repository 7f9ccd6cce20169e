// Public domain.

package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soniakeys/w51fit/internal/storage"
)

var ctx = context.Background()

// MockObjectAPI implements storage.ObjectAPI for testing
type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestParseURI(t *testing.T) {
	for _, tc := range []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{"s3://w51/maps/tex.fits", "w51", "maps/tex.fits", true},
		{"s3://w51/", "", "", false},
		{"s3://w51", "", "", false},
		{"maps/tex.fits", "", "", false},
	} {
		b, k, ok := storage.ParseURI(tc.uri)
		assert.Equal(t, tc.ok, ok, tc.uri)
		assert.Equal(t, tc.bucket, b, tc.uri)
		assert.Equal(t, tc.key, k, tc.uri)
	}
}

func TestLocal(t *testing.T) {
	var o storage.Opener
	path := filepath.Join(t.TempDir(), "sed.txt")
	w, err := o.Create(ctx, path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "1.4 4.7 0.52\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := o.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "1.4 4.7 0.52\n", string(b))
}

func TestS3(t *testing.T) {
	m := new(MockObjectAPI)
	o := storage.Opener{S3: m}

	var put []byte
	m.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "w51" && *in.Key == "tex.fits" &&
			*in.ContentType == "application/fits"
	})).Run(func(args mock.Arguments) {
		put, _ = io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()
	w, err := o.Create(ctx, "s3://w51/tex.fits")
	require.NoError(t, err)
	io.WriteString(w, "SIMPLE")
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, "SIMPLE", string(put))

	m.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Bucket == "w51" && *in.Key == "sed.txt"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader([]byte("5 9.2 0.24\n"))),
	}, nil)
	r, err := o.Open(ctx, "s3://w51/sed.txt")
	require.NoError(t, err)
	_, err = r.Seek(2, io.SeekStart)
	require.NoError(t, err)
	b, _ := io.ReadAll(r)
	assert.Equal(t, "9.2 0.24\n", string(b))

	m.On("GetObject", ctx, mock.Anything).Return(nil, errors.New("NoSuchKey"))
	_, err = o.Open(ctx, "s3://w51/missing")
	assert.ErrorContains(t, err, "NoSuchKey")
	m.AssertExpectations(t)

	_, err = (&storage.Opener{}).Open(ctx, "s3://w51/sed.txt")
	assert.True(t, errors.Is(err, storage.ErrNoS3))
	_, err = o.Open(ctx, "s3:/w51")
	assert.Error(t, err)
}
