package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	defaultUploadURLTTL   = 5 * time.Minute
	defaultDownloadURLTTL = time.Hour
	maxDownloadBytes      = 20 << 20
)

// s3API is the minimal S3 interface required by Client.
// *s3.Client from aws-sdk-go-v2 satisfies this interface.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// presignAPI is satisfied by *s3.PresignClient.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Stored identifies an object written to the bucket.
type Stored struct {
	ObjectKey string
	ImageURL  string
}

// PresignedUpload lets a client PUT the bytes directly to the bucket.
type PresignedUpload struct {
	UploadURL string
	ObjectKey string
	ImageURL  string
}

// Object is a downloaded payload.
type Object struct {
	Body        []byte
	ContentType string
}

// Client stores image payloads in one S3 bucket.
type Client struct {
	api            s3API
	presigner      presignAPI
	bucket         string
	region         string
	uploadURLTTL   time.Duration
	downloadURLTTL time.Duration
}

type Option func(*Client)

func WithUploadURLTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadURLTTL = d
		}
	}
}

func WithDownloadURLTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.downloadURLTTL = d
		}
	}
}

// New creates a Client for bucket in region.
func New(api s3API, presigner presignAPI, bucket, region string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("objectstore: api must not be nil")
	}
	if presigner == nil {
		return nil, errors.New("objectstore: presigner must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("objectstore: bucket must not be empty")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, errors.New("objectstore: region must not be empty")
	}
	c := &Client{
		api:            api,
		presigner:      presigner,
		bucket:         bucket,
		region:         region,
		uploadURLTTL:   defaultUploadURLTTL,
		downloadURLTTL: defaultDownloadURLTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PublicURL is the virtual-hosted URL of key; readable when the bucket policy allows it.
func (c *Client) PublicURL(key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s.s3.%s.amazonaws.com", c.bucket, c.region),
		Path:   "/" + key,
	}
	return u.String()
}

// Upload writes body under "<sessionID>/<uuid>.<ext>".
func (c *Client) Upload(ctx context.Context, sessionID, filename, contentType string, body []byte) (Stored, error) {
	key, err := newObjectKey(sessionID, filename)
	if err != nil {
		return Stored{}, err
	}
	if _, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}); err != nil {
		return Stored{}, fmt.Errorf("objectstore: put %q: %w", key, err)
	}
	return Stored{ObjectKey: key, ImageURL: c.PublicURL(key)}, nil
}

// Download reads the object at key.
func (c *Client) Download(ctx context.Context, key string) (Object, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Object{}, errors.New("objectstore: key is required")
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("objectstore: get %q: %w", key, err)
	}
	if out == nil || out.Body == nil {
		return Object{}, fmt.Errorf("objectstore: get %q: empty body", key)
	}
	defer func() { _ = out.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(out.Body, maxDownloadBytes+1))
	if err != nil {
		return Object{}, fmt.Errorf("objectstore: read %q: %w", key, err)
	}
	if len(buf) > maxDownloadBytes {
		return Object{}, fmt.Errorf("objectstore: object %q exceeds %d bytes", key, maxDownloadBytes)
	}
	return Object{Body: buf, ContentType: aws.ToString(out.ContentType)}, nil
}

// Delete removes the object at key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("objectstore: delete %q: %w", key, err)
	}
	return nil
}

// PresignUpload issues a time-limited PUT URL for a new object of the session.
func (c *Client) PresignUpload(ctx context.Context, sessionID, filename, contentType string) (PresignedUpload, error) {
	key, err := newObjectKey(sessionID, filename)
	if err != nil {
		return PresignedUpload{}, err
	}
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.uploadURLTTL))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("objectstore: presign put %q: %w", key, err)
	}
	return PresignedUpload{UploadURL: req.URL, ObjectKey: key, ImageURL: c.PublicURL(key)}, nil
}

// PresignDownload issues a time-limited GET URL for key.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.downloadURLTTL))
	if err != nil {
		return "", fmt.Errorf("objectstore: presign get %q: %w", key, err)
	}
	return req.URL, nil
}

func newObjectKey(sessionID, filename string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("objectstore: session id is required")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return "", errors.New("objectstore: session id must not contain path separators")
	}
	return sessionID + "/" + newUUID() + extension(filename), nil
}

func extension(filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if ext == "" || ext == "." {
		return ".jpg"
	}
	return ext
}

var newUUID = func() string {
	return uuid.NewString()
}
